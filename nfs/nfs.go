package nfs

import (
	"log"
	"net"

	"github.com/go-git/go-billy/v5"
	gonfs "github.com/willscott/go-nfs"
	"github.com/willscott/go-nfs/helpers"

	"spa-static-server/utils"
)

// handleCacheSize bounds the number of file handles kept by the export.
const handleCacheSize = 1024

// StartNFSServer exports root read-only over NFSv3 on a TCP listener bound
// to addr. No authentication is performed and dotfiles are left out of the
// export.
func StartNFSServer(addr string, root billy.Filesystem, logger *log.Logger) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	handler := helpers.NewCachingHandler(helpers.NewNullAuthHandler(utils.HideDotfiles(utils.ReadOnly(root))), handleCacheSize)
	go func() {
		if logger != nil {
			logger.Printf("nfs export listening on %s", ln.Addr())
		}
		if err := gonfs.Serve(ln, handler); err != nil {
			if logger != nil {
				logger.Printf("nfs serve error: %v", err)
			}
		}
	}()
	return ln, nil
}
