package fsys

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/ulikunitz/xz/lzma"
)

func init() {
	Register("lzma", func() Filesystem { return LZMA{} })
}

// LZMA compresses every file it writes.  Directory handling is the
// same as Disk.
type LZMA struct {
	Disk
}

func (LZMA) Name() string { return "lzma" }

func (fs LZMA) ReadFile(path string) (buf []byte, err error) {
	raw, err := fs.Disk.ReadFile(path)
	if err != nil {
		return
	}
	return fs.Unwrap(raw)
}

func (fs LZMA) WriteFile(path string, data []byte) (err error) {
	defer Return(&err)
	var out bytes.Buffer
	w, err := lzma.NewWriter(&out)
	Ck(err)
	_, err = w.Write(data)
	Ck(err)
	err = w.Close()
	Ck(err)
	err = fs.Disk.WriteFile(path, out.Bytes())
	Ck(err)
	return
}

func (LZMA) Unwrap(raw []byte) (buf []byte, err error) {
	r, err := lzma.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "lzma")
	}
	buf, err = io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "lzma")
	}
	return
}
