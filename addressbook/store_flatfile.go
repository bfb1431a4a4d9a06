package addressbook

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lastcanal/libbitcoin-network/p2perr"
)

// FlatFileStore persists the address book as one line per address —
// "host port services timestamp" — in a plain text file. It exists for
// embedders who don't want a leveldb dependency pulled in just to
// remember a handful of peer addresses between runs; the hosts file
// format deliberately mirrors the single-line-per-peer format the
// btcsuite-lineage nodes have always shipped for this purpose.
type FlatFileStore struct {
	path string
}

// NewFlatFileStore returns a store that reads and writes path.
func NewFlatFileStore(path string) *FlatFileStore {
	return &FlatFileStore{path: path}
}

// Load implements Store. A missing file is an empty address set, not
// an error.
func (s *FlatFileStore) Load() ([]Address, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, p2perr.Wrap(err, p2perr.FileSystem, "open hosts file")
	}
	defer f.Close()

	var out []Address
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		a, err := parseLine(line)
		if err != nil {
			return nil, p2perr.Wrap(err, p2perr.FileSystem, "parse hosts file")
		}
		out = append(out, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, p2perr.Wrap(err, p2perr.FileSystem, "read hosts file")
	}
	return out, nil
}

// Save implements Store, overwriting the file with addresses.
func (s *FlatFileStore) Save(addresses []Address) error {
	f, err := os.Create(s.path)
	if err != nil {
		return p2perr.Wrap(err, p2perr.FileSystem, "create hosts file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, a := range addresses {
		if _, err := fmt.Fprintf(w, "%s %d %d %d\n", a.Host, a.Port, a.Services, a.Timestamp.Unix()); err != nil {
			return p2perr.Wrap(err, p2perr.FileSystem, "write hosts file")
		}
	}
	if err := w.Flush(); err != nil {
		return p2perr.Wrap(err, p2perr.FileSystem, "flush hosts file")
	}
	return nil
}

func parseLine(line string) (Address, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Address{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}
	port, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return Address{}, err
	}
	services, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Address{}, err
	}
	ts, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Address{}, err
	}
	return Address{
		Host:      fields[0],
		Port:      uint16(port),
		Services:  services,
		Timestamp: time.Unix(ts, 0),
	}, nil
}
