package navigate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eargollo/tracenav/internal/scan"
	"github.com/eargollo/tracenav/internal/trace"
	"github.com/eargollo/tracenav/internal/workspace"
)

type opened struct {
	path         string
	line, column int
}

type recordingNavigator struct {
	mu    sync.Mutex
	opens []opened
}

func (r *recordingNavigator) Open(_ context.Context, path string, line, column int) error {
	r.mu.Lock()
	r.opens = append(r.opens, opened{path, line, column})
	r.mu.Unlock()
	return nil
}

func (r *recordingNavigator) all() []opened {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]opened(nil), r.opens...)
}

func TestCommandNavigator_SubstitutesPlaceholders(t *testing.T) {
	n, err := NewCommandNavigator([]string{"code", "--goto", "{path}:{line}:{column}"})
	require.NoError(t, err)

	var gotName string
	var gotArgs []string
	n.run = func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}

	require.NoError(t, n.Open(context.Background(), "/src/Cart.cs", 41, 0))
	assert.Equal(t, "code", gotName)
	assert.Equal(t, []string{"--goto", "/src/Cart.cs:42:1"}, gotArgs)
}

func TestCommandNavigator_Errors(t *testing.T) {
	_, err := NewCommandNavigator(nil)
	assert.ErrorIs(t, err, ErrNoCommand)
	_, err = NewCommandNavigator([]string{" "})
	assert.ErrorIs(t, err, ErrNoCommand)

	n, err := NewCommandNavigator([]string{"editor", "{path}"})
	require.NoError(t, err)
	boom := errors.New("exit status 1")
	n.run = func(context.Context, string, ...string) error { return boom }
	err = n.Open(context.Background(), "/a.cs", 0, 0)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "/a.cs:1")
}

func TestRunCommand_DoesNotWaitForEditor(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	start := time.Now()
	require.NoError(t, runCommand(context.Background(), "sleep", "2"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunCommand_LaunchFailure(t *testing.T) {
	err := runCommand(context.Background(), filepath.Join(t.TempDir(), "no-such-editor"))
	assert.Error(t, err)
}

func newDispatcher(t *testing.T, root string, projects []scan.Project) (*Dispatcher, *recordingNavigator, *scan.Manager) {
	t.Helper()
	nav := &recordingNavigator{}
	d, mgr := newDispatcherWith(t, root, projects, nav)
	return d, nav, mgr
}

func newDispatcherWith(t *testing.T, root string, projects []scan.Project, nav Navigator) (*Dispatcher, *scan.Manager) {
	t.Helper()
	content, err := workspace.NewContent(nil, 16)
	require.NoError(t, err)
	mgr := scan.NewManager(scan.Deps{Enumerator: &workspace.Enumerator{}, Content: content})

	d := NewDispatcher(nil,
		func() string { return root },
		func() []scan.Project { return projects },
		mgr, nav)

	events, unsubscribe := mgr.Subscribe(32)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, events)
		close(done)
	}()
	t.Cleanup(func() {
		mgr.StopIfRunning(true)
		cancel()
		<-done
		unsubscribe()
	})
	return d, mgr
}

func TestDispatcher_FileToken(t *testing.T) {
	d, nav, _ := newDispatcher(t, "/home/dev/Shop", nil)

	act, err := d.Activate(context.Background(), trace.Token{
		Text: `C:\agent\_work\Shop\src\Cart.cs:line 42`,
		Kind: trace.KindFile,
	})
	require.NoError(t, err)
	require.NotNil(t, act.Target)
	assert.Equal(t, "/home/dev/Shop/src/Cart.cs", act.Target.Path)
	assert.Equal(t, 42, act.Target.Line)
	assert.Equal(t, []opened{{"/home/dev/Shop/src/Cart.cs", 41, 0}}, nav.all())
}

func TestDispatcher_UnresolvableFileToken(t *testing.T) {
	d, nav, _ := newDispatcher(t, "/home/dev/Shop", nil)

	_, err := d.Activate(context.Background(), trace.Token{
		Text: `C:\other\Repo\Cart.cs:line 3`,
		Kind: trace.KindFile,
	})
	var rerr *trace.ResolutionError
	assert.ErrorAs(t, err, &rerr)
	assert.Empty(t, nav.all())
}

func TestDispatcher_TextTokenRejected(t *testing.T) {
	d, nav, _ := newDispatcher(t, "/home/dev/Shop", nil)

	_, err := d.Activate(context.Background(), trace.Token{Text: "hello", Kind: trace.KindText})
	assert.ErrorIs(t, err, scan.ErrInvalidArgument)
	assert.Empty(t, nav.all())
}

func TestDispatcher_MethodTokenNavigatesToFirstHit(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Cart.cs")
	require.NoError(t, os.WriteFile(path, []byte("class Cart {\n    public void Checkout() {}\n}\n"), 0o644))

	projects := []scan.Project{{Name: "shop", Root: root, Include: []string{"**/*.cs"}}}
	d, nav, _ := newDispatcher(t, root, projects)

	act, err := d.Activate(context.Background(), trace.Token{
		Text: " at Shop.Cart.Checkout(",
		Kind: trace.KindMethod,
	})
	require.NoError(t, err)
	assert.Equal(t, "Checkout(", act.Term)
	require.NotNil(t, act.Run)

	require.Eventually(t, func() bool { return len(nav.all()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, opened{path, 1, 16}, nav.all()[0])
}

func TestDispatcher_MethodTokenWithoutHitsDoesNotNavigate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "Cart.cs"), []byte("class Cart {}\n"), 0o644))

	projects := []scan.Project{{Name: "shop", Root: root}}
	d, nav, mgr := newDispatcher(t, root, projects)

	_, err := d.Activate(context.Background(), trace.Token{Text: " at Shop.Cart.Missing(", Kind: trace.KindMethod})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return mgr.LastSummary() != nil }, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, nav.all())
}

func TestDispatcher_MethodTokenWithoutProjects(t *testing.T) {
	d, _, _ := newDispatcher(t, "/home/dev/Shop", nil)

	_, err := d.Activate(context.Background(), trace.Token{Text: " at Shop.Cart.Checkout(", Kind: trace.KindMethod})
	assert.ErrorIs(t, err, scan.ErrEmptySelection)
}

// blockingNavigator never returns from Open until released, like an editor
// that stays in the foreground.
type blockingNavigator struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingNavigator) Open(context.Context, string, int, int) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func TestDispatcher_BlockedEditorDoesNotStallScans(t *testing.T) {
	root := t.TempDir()
	for i := range 100 {
		name := filepath.Join(root, fmt.Sprintf("File%03d.cs", i))
		require.NoError(t, os.WriteFile(name, []byte("void Checkout() {}\n"), 0o644))
	}
	projects := []scan.Project{{Name: "shop", Root: root}}

	nav := &blockingNavigator{entered: make(chan struct{}), release: make(chan struct{})}
	d, mgr := newDispatcherWith(t, root, projects, nav)
	t.Cleanup(func() { close(nav.release) })

	_, err := d.Activate(context.Background(), trace.Token{Text: " at Shop.Cart.Checkout(", Kind: trace.KindMethod})
	require.NoError(t, err)
	select {
	case <-nav.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("navigator was never called")
	}

	// The editor is still open; a second run must still reach Stopped.
	snap, err := mgr.Start(context.Background(), projects, "Checkout(")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := mgr.LastSummary()
		return s != nil && s.RunID == snap.RunID
	}, 5*time.Second, 5*time.Millisecond)

	s := mgr.LastSummary()
	assert.Equal(t, uint(100), s.FilesProcessed)
	assert.Equal(t, 100, s.Hits)

	stopped := make(chan struct{})
	go func() {
		mgr.StopIfRunning(true)
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("StopIfRunning(true) did not return")
	}
}
