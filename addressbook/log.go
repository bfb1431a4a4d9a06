package addressbook

import "github.com/lastcanal/libbitcoin-network/internal/logger"

var log = logger.RegisterSubSystem("ADDR")
