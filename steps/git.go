package steps

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/slotbase/layout"
)

func init() {
	Register("git", func(host Host) (Backend, error) { return OpenGit(host) })
}

// commit message trailers
const (
	slotTrailer     = "Step-Slot: "
	positionTrailer = "Step-Position: "
)

// Git keeps a chain as the commit history of the session folder.
// The current version of a slot lives in {name}.steps/{name}; every
// promotion commits that directory with the label as subject and
// trailers naming the slot and the version's position.
type Git struct {
	Host Host
	repo *git.Repository
}

// OpenGit opens the repository in the host folder, creating it if
// needed.
func OpenGit(host Host) (b *Git, err error) {
	defer Return(&err)
	repo, err := git.PlainOpen(host.Dir())
	if err == git.ErrRepositoryNotExists {
		repo, err = git.PlainInit(host.Dir(), false)
	}
	Ck(err, "open repository %s", host.Dir())
	return &Git{Host: host, repo: repo}, nil
}

func (b *Git) Name() string { return "git" }

// revision is one commit of a chain.
type revision struct {
	commit *object.Commit
	label  string
	pos    int
}

func (b *Git) rel(slot *layout.Path) string {
	return slot.Physical() + layout.Steps.Suffix()
}

// history returns the revisions of slot, newest first.  An empty
// repository has none.
func (b *Git) history(slot *layout.Path) (revs []revision, err error) {
	iter, err := b.repo.Log(&git.LogOptions{})
	if err == plumbing.ErrReferenceNotFound {
		return nil, nil
	}
	if err != nil {
		return
	}
	defer iter.Close()
	for {
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rev, ok := parseMessage(c.Message)
		if !ok || rev.label == "" {
			continue
		}
		if trailer(c.Message, slotTrailer) != slot.Physical() {
			continue
		}
		rev.commit = c
		revs = append(revs, rev)
	}
	return
}

func trailer(msg, key string) string {
	for _, line := range strings.Split(msg, "\n") {
		if strings.HasPrefix(line, key) {
			return strings.TrimSpace(strings.TrimPrefix(line, key))
		}
	}
	return ""
}

func parseMessage(msg string) (rev revision, ok bool) {
	lines := strings.SplitN(msg, "\n", 2)
	rev.label = strings.TrimSpace(lines[0])
	pos, err := strconv.Atoi(trailer(msg, positionTrailer))
	if err != nil {
		return rev, false
	}
	rev.pos = pos
	return rev, true
}

// positions returns the newest revision for each position and the
// number of positions.
func positions(revs []revision) (byPos map[int]revision, n int) {
	byPos = map[int]revision{}
	for _, rev := range revs {
		if _, ok := byPos[rev.pos]; !ok {
			byPos[rev.pos] = rev
		}
		if rev.pos+1 > n {
			n = rev.pos + 1
		}
	}
	return
}

func (b *Git) Promote(slot *layout.Path, label string, pos int) (err error) {
	defer Return(&err)
	err = ValidLabel(label)
	Ck(err)
	rel := b.rel(slot)
	chain := filepath.Join(b.Host.Dir(), rel)
	err = move(b.Host.FS(), b.Host.Dir(), slot.Physical(), chain, slot.Physical())
	if err != nil {
		return
	}
	revs, err := b.history(slot)
	Ck(err)
	_, n := positions(revs)
	if pos < 0 || pos >= n {
		if pos >= 0 {
			log.Infof("%s: step position %d out of range, appending", slot.Physical(), pos)
		}
		pos = n
	}
	wt, err := b.repo.Worktree()
	Ck(err)
	_, err = wt.Add(rel)
	Ck(err, "stage %s", rel)
	msg := fmt.Sprintf("%s\n\n%s%s\n%s%d\n", label, slotTrailer, slot.Physical(), positionTrailer, pos)
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "slotbase",
			Email: "slotbase@localhost",
			When:  time.Now(),
		},
		AllowEmptyCommits: true,
	})
	Ck(err, "commit %s", rel)
	log.Debugf("committed %s as %s at position %d", slot.Physical(), label, pos)
	return
}

func (b *Git) Steps(slot *layout.Path) (labels []string, err error) {
	revs, err := b.history(slot)
	if err != nil {
		return
	}
	byPos, n := positions(revs)
	for i := 0; i < n; i++ {
		if rev, ok := byPos[i]; ok {
			labels = append(labels, rev.label)
		}
	}
	return
}

// read decodes the slot's representation as of rev.
func (b *Git) read(slot *layout.Path, rev revision) (v interface{}, found bool, err error) {
	for _, k := range movable {
		path := b.rel(slot) + "/" + slot.Physical() + k.Suffix()
		file, err := rev.commit.File(path)
		if err == object.ErrFileNotFound {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		contents, err := file.Contents()
		if err != nil {
			return nil, false, err
		}
		data, err := b.Host.FS().Unwrap([]byte(contents))
		if err != nil {
			return nil, false, err
		}
		v, err = b.Host.DecodeAs(k, slot.Name, data)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}
	return
}

func (b *Git) Latest(slot *layout.Path, visited map[string]bool) (v interface{}, found bool, err error) {
	return b.Offset(slot, 0)
}

// Step returns the newest position whose current revision carries
// label.
func (b *Git) Step(slot *layout.Path, label string) (v interface{}, found bool, err error) {
	revs, err := b.history(slot)
	if err != nil {
		return
	}
	byPos, n := positions(revs)
	for i := n - 1; i >= 0; i-- {
		if rev, ok := byPos[i]; ok && rev.label == label {
			return b.read(slot, rev)
		}
	}
	return
}

func (b *Git) Offset(slot *layout.Path, n int) (v interface{}, found bool, err error) {
	revs, err := b.history(slot)
	if err != nil || n < 0 {
		return
	}
	byPos, count := positions(revs)
	rev, ok := byPos[count-1-n]
	if !ok {
		return
	}
	return b.read(slot, rev)
}
