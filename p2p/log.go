package p2p

import "github.com/lastcanal/libbitcoin-network/internal/logger"

var log = logger.RegisterSubSystem("P2P ")
