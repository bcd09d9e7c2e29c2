package editor_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/phanxgames/lumen"
	"github.com/phanxgames/lumen/editor"
	"github.com/phanxgames/lumen/physics"
)

type recordingDialog struct {
	titles   []string
	messages []string
}

func (d *recordingDialog) ShowError(title, message string) {
	d.titles = append(d.titles, title)
	d.messages = append(d.messages, message)
}

type panickingClipboard struct{}

func (panickingClipboard) ReadText() ([]byte, error) { panic("clipboard exploded") }
func (panickingClipboard) WriteText([]byte) error    { panic("clipboard exploded") }

func newEditor(t *testing.T) (*editor.Editor, *recordingDialog, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	engine := &lumen.Engine{
		Logger: logger,
		Scenes: lumen.NewSceneManager(nil, nil, logger),
	}
	dialog := &recordingDialog{}
	ed := &editor.Editor{Dialog: dialog, Clipboard: &editor.MemoryClipboard{}}
	require.NoError(t, ed.Attach(engine))
	return ed, dialog, logs
}

func sampleScene(t *testing.T, ed *editor.Editor, name string) *lumen.Scene {
	t.Helper()
	s := lumen.NewScene(name, ed.Engine.Scenes.Options())
	root := s.CreateEntity("root")
	root.Transform().SetPosition(10, 20)
	child := s.CreateEntity("child")
	child.SetParent(root)
	require.NoError(t, child.AddComponent(lumen.NewBoxCollider(3, 4)))
	ed.Engine.Scenes.Add(s)
	return s
}

func TestExportImportScene(t *testing.T) {
	ed, dialog, _ := newEditor(t)
	sampleScene(t, ed, "level")

	path := filepath.Join(t.TempDir(), "out", "level.scene.json")
	require.NoError(t, ed.ExportScene("level", path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, ed.Engine.Scenes.Remove("level"))
	s, err := ed.ImportScene(path)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "level", s.Name)
	assert.Len(t, s.Entities(), 2)

	got, ok := ed.Engine.Scenes.Get("level")
	require.True(t, ok)
	assert.Same(t, s, got)

	root, ok := s.FindEntityByName("root")
	require.True(t, ok)
	assert.Equal(t, 10.0, root.Transform().X)
	child, ok := s.FindEntityByName("child")
	require.True(t, ok)
	assert.Same(t, root, child.Parent())
	_, ok = lumen.GetComponent[*lumen.BoxCollider](child)
	assert.True(t, ok)

	assert.Empty(t, dialog.messages)
}

func TestImportDuplicateSceneFails(t *testing.T) {
	ed, dialog, _ := newEditor(t)
	sampleScene(t, ed, "level")
	path := filepath.Join(t.TempDir(), "level.json")
	require.NoError(t, ed.ExportScene("level", path))

	s, err := ed.ImportScene(path)
	assert.Error(t, err)
	assert.Nil(t, s)
	assert.Len(t, dialog.messages, 1)
}

func TestExportMissingSceneShowsDialog(t *testing.T) {
	ed, dialog, logs := newEditor(t)
	err := ed.ExportScene("nope", filepath.Join(t.TempDir(), "x.json"))
	require.ErrorIs(t, err, lumen.ErrSceneNotFound)
	require.Len(t, dialog.messages, 1)
	assert.Equal(t, "Could not export scene. See the log for details.", dialog.messages[0])
	assert.Equal(t, 1, logs.FilterMessage("editor action failed").Len())
}

func TestImportMalformedScene(t *testing.T) {
	ed, dialog, _ := newEditor(t)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"$type":"Scene","Entities":{"$values":[{"Id":"zzz"}]}}`), 0o644))

	_, err := ed.ImportScene(path)
	require.ErrorIs(t, err, lumen.ErrMalformedScene)
	assert.Len(t, dialog.messages, 1)
	assert.Empty(t, ed.Engine.Scenes.Names())
}

func TestCopyPasteEntity(t *testing.T) {
	ed, _, _ := newEditor(t)
	s := sampleScene(t, ed, "level")
	root, _ := s.FindEntityByName("root")

	require.NoError(t, ed.CopyEntity(root))
	roots, err := ed.PasteEntity(s)
	require.NoError(t, err)
	require.Len(t, roots, 1)

	pasted := roots[0]
	assert.NotEqual(t, root.ID, pasted.ID)
	assert.Equal(t, "root", pasted.Name)
	require.Len(t, pasted.Children(), 1)
	assert.NotEqual(t, root.Children()[0].ID, pasted.Children()[0].ID)
	assert.Len(t, s.Entities(), 4)
}

func TestPasteEmptyClipboard(t *testing.T) {
	ed, dialog, _ := newEditor(t)
	s := sampleScene(t, ed, "level")
	_, err := ed.PasteEntity(s)
	require.ErrorIs(t, err, editor.ErrClipboardEmpty)
	assert.Len(t, dialog.messages, 1)
}

func TestPasteWithoutScene(t *testing.T) {
	ed, _, _ := newEditor(t)
	_, err := ed.PasteEntity(nil)
	assert.ErrorIs(t, err, editor.ErrNoScene)
}

func TestCopyNilEntity(t *testing.T) {
	ed, _, _ := newEditor(t)
	assert.ErrorIs(t, ed.CopyEntity(nil), editor.ErrNoSelection)
}

func TestActionsNeverPanic(t *testing.T) {
	ed, dialog, logs := newEditor(t)
	ed.Clipboard = panickingClipboard{}
	s := sampleScene(t, ed, "level")
	root, _ := s.FindEntityByName("root")

	assert.NotPanics(t, func() {
		err := ed.CopyEntity(root)
		assert.True(t, errors.Is(err, editor.ErrActionPanicked))
	})
	assert.NotPanics(t, func() {
		_, err := ed.PasteEntity(s)
		assert.True(t, errors.Is(err, editor.ErrActionPanicked))
	})
	assert.Len(t, dialog.messages, 2)
	assert.Equal(t, 2, logs.FilterMessage("editor action panicked").Len())
}

func TestNilDialogIsTolerated(t *testing.T) {
	ed, _, _ := newEditor(t)
	ed.Dialog = nil
	assert.NotPanics(t, func() {
		_ = ed.ExportScene("missing", filepath.Join(t.TempDir(), "m.json"))
	})
}

func TestSelection(t *testing.T) {
	ed, _, _ := newEditor(t)
	s := sampleScene(t, ed, "level")
	root, _ := s.FindEntityByName("root")

	ed.Select(root)
	assert.Same(t, root, ed.Selected())

	s.DestroyEntity(root)
	assert.Nil(t, ed.Selected())
}

func TestMemoryClipboard(t *testing.T) {
	var c editor.MemoryClipboard
	_, err := c.ReadText()
	require.ErrorIs(t, err, editor.ErrClipboardEmpty)

	src := []byte("hello")
	require.NoError(t, c.WriteText(src))
	src[0] = 'j'
	got, err := c.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestPickAtUsesColliderSystem(t *testing.T) {
	ed, _, _ := newEditor(t)
	opts := ed.Engine.Scenes.Options()
	opts.Installers = append(lumen.DefaultSystems(), physics.Install(physics.DefaultConfig()))
	s := lumen.NewScene("pick", opts)
	require.NoError(t, s.Load())

	target := s.CreateEntity("target")
	target.Transform().SetPosition(40, 40)
	require.NoError(t, target.AddComponent(lumen.NewCircleCollider(8)))

	assert.Same(t, target, ed.PickAt(s, 42, 38))
	assert.Same(t, target, ed.Selected())

	assert.Nil(t, ed.PickAt(s, 200, 200))
	assert.Nil(t, ed.Selected())
}

func TestPickAtWithoutPicker(t *testing.T) {
	ed, _, _ := newEditor(t)
	s := lumen.NewScene("plain", ed.Engine.Scenes.Options())
	assert.Nil(t, ed.PickAt(s, 0, 0), "unloaded scene")
	require.NoError(t, s.Load())
	assert.Nil(t, ed.PickAt(s, 0, 0))
}
