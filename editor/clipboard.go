package editor

import (
	"errors"
	"sync"

	"golang.design/x/clipboard"
)

// ErrClipboardEmpty is returned when the clipboard holds no text.
var ErrClipboardEmpty = errors.New("editor: clipboard is empty")

// Clipboard stores copied entities as text.
type Clipboard interface {
	ReadText() ([]byte, error)
	WriteText(data []byte) error
}

type systemClipboard struct {
	once sync.Once
	err  error
}

var sharedClipboard = &systemClipboard{}

// SystemClipboard returns the OS clipboard. It is initialized on first use;
// on platforms without one every call returns the init error.
func SystemClipboard() Clipboard { return sharedClipboard }

func (c *systemClipboard) init() error {
	c.once.Do(func() { c.err = clipboard.Init() })
	return c.err
}

func (c *systemClipboard) ReadText() ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	data := clipboard.Read(clipboard.FmtText)
	if len(data) == 0 {
		return nil, ErrClipboardEmpty
	}
	return data, nil
}

func (c *systemClipboard) WriteText(data []byte) error {
	if err := c.init(); err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtText, data)
	return nil
}

// MemoryClipboard is a process-local Clipboard for headless tools.
type MemoryClipboard struct {
	mu   sync.Mutex
	data []byte
}

func (c *MemoryClipboard) ReadText() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) == 0 {
		return nil, ErrClipboardEmpty
	}
	return append([]byte(nil), c.data...), nil
}

func (c *MemoryClipboard) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data[:0], data...)
	return nil
}
