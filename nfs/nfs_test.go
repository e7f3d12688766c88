package nfs

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nfsc "github.com/willscott/go-nfs-client/nfs"
	"github.com/willscott/go-nfs-client/nfs/rpc"
)

func TestStartNFSServer(t *testing.T) {
	root := memfs.New()
	require.NoError(t, util.WriteFile(root, "index.html", []byte("<html>Home</html>"), 0o644))

	ln, err := StartNFSServer("127.0.0.1:0", root, nil)
	require.NoError(t, err)
	defer ln.Close()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	conn.Close()

	_, err = StartNFSServer(ln.Addr().String(), root, nil)
	assert.Error(t, err, "address already bound")
}

func TestNFSExportHidesDotfiles(t *testing.T) {
	root := memfs.New()
	require.NoError(t, util.WriteFile(root, "index.html", []byte("<html>Home</html>"), 0o644))
	require.NoError(t, util.WriteFile(root, ".env", []byte("SECRET=1"), 0o644))
	require.NoError(t, util.WriteFile(root, ".git/config", []byte("[core]"), 0o644))

	ln, err := StartNFSServer("127.0.0.1:0", root, nil)
	require.NoError(t, err)
	defer ln.Close()

	c, err := rpc.DialTCP(ln.Addr().Network(), ln.Addr().String(), false)
	require.NoError(t, err)
	defer c.Close()

	var mounter nfsc.Mount
	mounter.Client = c
	target, err := mounter.Mount("/", rpc.AuthNull)
	require.NoError(t, err)
	defer mounter.Unmount()

	entries, err := target.ReadDirPlus("/")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"index.html"}, names)

	_, _, err = target.Lookup("/.env", false)
	assert.Error(t, err)
	_, _, err = target.Lookup("/.git/config", false)
	assert.Error(t, err)

	f, err := target.Open("/index.html")
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "<html>Home</html>", string(b))

	_, err = target.Create("/new.txt", 0o644)
	assert.Error(t, err, "export is read-only")
}
