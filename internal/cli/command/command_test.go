package command

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/yndnr/heapsight-go/internal/core/domain"
	"github.com/yndnr/heapsight-go/internal/session"
	"github.com/yndnr/heapsight-go/internal/storage/image"
	"github.com/yndnr/heapsight-go/internal/uitree"
)

func TestApp_Commands(t *testing.T) {
	app := App()

	want := []string{"attach", "locate", "tree", "image", "dict", "typename", "shell", "watch", "version"}
	for _, name := range want {
		if app.Command(name) == nil {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, name := range []string{"config", "output", "workers", "log-level", "log-format"} {
		found := false
		for _, f := range app.Flags {
			if f.Names()[0] == name {
				found = true
			}
		}
		if !found {
			t.Errorf("global flag %q not registered", name)
		}
	}
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}

	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if info["version"] == "" || info["go_version"] == "" {
		t.Errorf("version info = %v", info)
	}
}

func TestSetup_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad output", []string{"-o", "xml", "version"}, "output format"},
		{"too many workers", []string{"--workers", "99", "version"}, "workers"},
		{"bad log level", []string{"--log-level", "loud", "version"}, "log.level"},
		{"missing config", []string{"--config", "/nonexistent/heapsight.yaml", "version"}, "load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestAttach_NoSource(t *testing.T) {
	_, _, err := run(t, "attach")
	if !errors.Is(err, errNoSource) {
		t.Fatalf("attach error = %v, want errNoSource", err)
	}
}

func TestLocate_JSON(t *testing.T) {
	si := newSavedImage(t)

	out, _, err := run(t, "-o", "json", "locate", "--image", si.dir)
	if err != nil {
		t.Fatalf("locate error = %v", err)
	}

	var r session.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("output is not a report: %v\n%s", err, out)
	}
	if r.State != "root_instances_resolved" {
		t.Errorf("State = %q", r.State)
	}
	if r.RootType == nil || r.RootType.Addr != si.rootType {
		t.Errorf("RootType = %+v, want %v", r.RootType, si.rootType)
	}
	if !domain.NewCandidateSet(r.Instances...).Equal(domain.NewCandidateSet(si.instances...)) {
		t.Errorf("Instances = %v, want %v", r.Instances, si.instances)
	}
	if len(r.Builtins) != 11 {
		t.Errorf("Builtins = %d, want 11", len(r.Builtins))
	}
}

func TestLocate_Table(t *testing.T) {
	si := newSavedImage(t)

	out, _, err := run(t, "locate", "--image", si.dir)
	if err != nil {
		t.Fatalf("locate error = %v", err)
	}
	for _, want := range []string{"FIELD", "root_instances_resolved", "BUILTIN", "NoneType", si.rootType.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLocate_RootTypeFlag(t *testing.T) {
	si := newSavedImage(t)

	out, _, err := run(t, "-o", "json", "locate", "--image", si.dir, "--root-type", "MainWindow")
	if err != nil {
		t.Fatalf("locate error = %v", err)
	}
	var r session.Report
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatal(err)
	}
	if r.State != "builtins_resolved" || len(r.Instances) != 0 {
		t.Errorf("report = %+v, want degraded attach", r)
	}
}

func TestTree(t *testing.T) {
	si := newSavedImage(t)

	out, _, err := run(t, "-o", "json", "tree", "--image", si.dir)
	if err != nil {
		t.Fatalf("tree error = %v", err)
	}
	var nodes []uitree.Node
	if err := json.Unmarshal([]byte(out), &nodes); err != nil {
		t.Fatalf("output is not a node list: %v\n%s", err, out)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d trees, want 2", len(nodes))
	}

	out, _, err = run(t, "tree", "--image", si.dir, "--root", si.instances[1].String())
	if err != nil {
		t.Fatalf("tree --root error = %v", err)
	}
	want := si.instances[1].String() + ` UIRoot _name="overlay"`
	if strings.TrimSpace(out) != want {
		t.Errorf("tree output = %q, want %q", out, want)
	}
}

func TestImageInfo(t *testing.T) {
	si := newSavedImage(t)

	out, _, err := run(t, "-o", "json", "image", "info", "--dir", si.dir)
	if err != nil {
		t.Fatalf("image info error = %v", err)
	}
	var meta image.Meta
	if err := json.Unmarshal([]byte(out), &meta); err != nil {
		t.Fatal(err)
	}
	if meta.PID != 4242 || meta.Regions != 2 || meta.ID == "" {
		t.Errorf("meta = %+v", meta)
	}

	out, _, err = run(t, "-o", "json", "image", "info", "--dir", si.dir, "--regions")
	if err != nil {
		t.Fatalf("image info --regions error = %v", err)
	}
	var rows []regionRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d regions, want 2", len(rows))
	}
	found := false
	for _, r := range rows {
		if r.Base == 0x7F0000100000 && r.Size == 0x4000 && r.End == 0x7F0000104000 {
			found = true
		}
	}
	if !found {
		t.Errorf("runtime region missing from %+v", rows)
	}
}

func TestImageInfo_Empty(t *testing.T) {
	_, _, err := run(t, "image", "info", "--dir", t.TempDir())
	if !errors.Is(err, image.ErrNoImage) {
		t.Fatalf("image info error = %v, want ErrNoImage", err)
	}
}

func TestTypeName(t *testing.T) {
	si := newSavedImage(t)

	out, _, err := run(t, "-o", "json", "typename", "--image", si.dir, "--addr", si.instances[0].String())
	if err != nil {
		t.Fatalf("typename error = %v", err)
	}
	var tn domain.TypeName
	if err := json.Unmarshal([]byte(out), &tn); err != nil {
		t.Fatal(err)
	}
	if tn.Addr != si.instances[0] || tn.Name != "UIRoot" {
		t.Errorf("typename = %+v", tn)
	}

	if _, _, err := run(t, "typename", "--image", si.dir, "--addr", "nope"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("bad --addr error = %v, want ErrInvalidArgument", err)
	}
}

func TestDict(t *testing.T) {
	si := newSavedImage(t)

	out, _, err := run(t, "-o", "json", "dict", "--image", si.dir, "--addr", si.dicts[0].String())
	if err != nil {
		t.Fatalf("dict error = %v", err)
	}
	var rows []dictRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d entries, want 1", len(rows))
	}
	if rows[0].KeyText != "_name" || rows[0].KeyType != "str" || rows[0].ValueType != "str" {
		t.Errorf("entry = %+v", rows[0])
	}
}

func TestFieldText(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"none", nil, "None"},
		{"string", "a\"b", `"a\"b"`},
		{"int", int64(3), "3"},
		{"ref", uitree.Ref{Addr: 0x10, Type: "Color"}, "<Color 0x10>"},
		{"untyped ref", uitree.Ref{Addr: 0x10}, "<0x10>"},
		{"node", &uitree.Node{Addr: 0x20, Type: "Label"}, "<Label 0x20>"},
		{"list", []any{int64(1), true}, "[1, true]"},
		{"dict", map[string]any{"b": 2.5, "a": "x"}, `{a: "x", b: 2.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fieldText(tt.in); got != tt.want {
				t.Errorf("fieldText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShell(t *testing.T) {
	si := newSavedImage(t)

	input := strings.Join([]string{
		"typename " + si.instances[0].String(),
		"dict " + si.dicts[1].String(),
		"tree " + si.instances[0].String(),
		"stats",
		"typename",
		"bogus",
		"exit",
	}, "\n") + "\n"

	out, _, err := runWithInput(t, input, "-o", "json", "shell", "--image", si.dir, "--history", "")
	if err != nil {
		t.Fatalf("shell error = %v", err)
	}

	for _, want := range []string{
		`"name": "UIRoot"`,
		`"key_text": "_name"`,
		`"_name": "main"`,
		`"regions": 2`,
		`"cached_types": `,
		"expected one address",
		`Error: unknown command "bogus"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("shell output missing %q:\n%s", want, out)
		}
	}
}

func TestShell_Types(t *testing.T) {
	si := newSavedImage(t)

	input := "typename " + si.instances[0].String() + "\ntypes\nexit\n"
	out, _, err := runWithInput(t, input, "-o", "json", "shell", "--image", si.dir, "--history", "")
	if err != nil {
		t.Fatalf("shell error = %v", err)
	}

	// Once from typename and once from the type cache listing.
	if got := strings.Count(out, `"name": "UIRoot"`); got != 2 {
		t.Errorf("UIRoot printed %d times, want 2:\n%s", got, out)
	}
}
