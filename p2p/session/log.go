package session

import "github.com/lastcanal/libbitcoin-network/internal/logger"

var log = logger.RegisterSubSystem("SESN")
