package command

import (
	"bytes"
	"strings"
	"testing"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/infra/workpool"
	"github.com/yndnr/heapsight-go/internal/memory/regions"
	"github.com/yndnr/heapsight-go/internal/storage/image"
	"github.com/yndnr/heapsight-go/internal/testutil/synthetic"
)

// savedImage is a synthetic process saved as a heap image.
type savedImage struct {
	dir       string
	rootType  domain.Addr
	instances []domain.Addr
	dicts     []domain.Addr
}

// newSavedImage builds a runtime region and an application heap with two
// UIRoot instances named "main" and "overlay", and saves it to a temp dir.
func newSavedImage(t *testing.T) *savedImage {
	t.Helper()

	im := synthetic.NewImage()
	rt := synthetic.NewRuntime(im.AddRegion(0x7F0000100000, 0x4000))
	app := synthetic.NewHeap(im.AddRegion(0x0000012340000000, 0x10000))

	si := &savedImage{dir: t.TempDir()}
	si.rootType = rt.UserType(app, "UIRoot")
	for _, name := range []string{"main", "overlay"} {
		dict := app.Dict(rt.Types["dict"], 8, synthetic.Entry{
			Key:   rt.S(app, "_name"),
			Value: rt.S(app, name),
		})
		si.dicts = append(si.dicts, dict)
		si.instances = append(si.instances, app.Instance(si.rootType, dict))
	}

	snap, err := regions.New(im, workpool.New(2)).Capture()
	if err != nil {
		t.Fatal(err)
	}
	store, err := image.Open(si.dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(snap, image.Meta{PID: 4242}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	return si
}

// run executes the app with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runWithInput(t, "", args...)
}

// runWithInput is run with stdin reading from input.
func runWithInput(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := App()
	app.Reader = strings.NewReader(input)
	app.Writer = &stdout
	app.ErrWriter = &stderr

	err := app.Run(append([]string{"heapsight"}, args...))
	return stdout.String(), stderr.String(), err
}
