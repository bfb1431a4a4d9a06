package addressbook

// Store is the backing-store abstraction the Book loads from and saves
// to. A Store that has never been written to must return (nil, nil)
// from Load, not an error — an absent store means an empty address set,
// not a failure.
type Store interface {
	Load() ([]Address, error)
	Save(addresses []Address) error
}
