// Package hierarchy builds the display tree the viewer UI consumes. The JSON
// field names and nesting here are a contract with the external viewer and
// must not change.
package hierarchy

import (
	"path"
	"strings"

	"github.com/KenCoder/school-converter/internal/cartridge"
)

// FileEntry is one renderable artifact attached to a file node.
type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Type  string `json:"type"` // docx | answer_key | original | google_doc | google_form | forms_json
	Title string `json:"title,omitempty"`
}

// Node is one display tree entry.
type Node struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Type     string      `json:"type"` // "folder" | "file"
	Path     string      `json:"path"`
	Children []*Node     `json:"children,omitempty"`
	Files    []FileEntry `json:"files,omitempty"`

	// ResourceID links a file node back to its manifest resource. Not part
	// of the viewer contract.
	ResourceID string `json:"-"`
}

// Tree is one cartridge's display hierarchy plus its unreachable resources.
type Tree struct {
	CartridgeName string
	Root          *Node

	// Loose holds renderable resources referenced by no organization item.
	Loose []cartridge.Resource

	// Unsupported holds unreferenced resources of no renderable kind. They
	// never enter the display tree; the session records them as skipped.
	Unsupported []cartridge.Resource
}

// Combined wraps several cartridges' trees under one synthetic root for a
// multi-cartridge session.
type Combined struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Type           string           `json:"type"`
	LooseFilesPath string           `json:"loose_files_path,omitempty"`
	Cartridges     []CartridgeEntry `json:"cartridges"`
}

// CartridgeEntry pairs a cartridge name with its hierarchy. Node ids are
// only unique per cartridge, so path resolution must select the cartridge
// first.
type CartridgeEntry struct {
	CartridgeName string `json:"cartridge_name"`
	Hierarchy     *Node  `json:"hierarchy"`
}

// Build assembles the display tree for one classified manifest. Folder
// paths are derived from sanitized titles; file nodes carry their parent
// folder's path, matching where their artifacts are written.
func Build(cartridgeName string, m *cartridge.Manifest) *Tree {
	t := &Tree{
		CartridgeName: cartridgeName,
		Root: &Node{
			ID:    m.Root.ID,
			Title: m.Root.Title,
			Type:  "folder",
			Path:  "",
		},
	}
	for _, child := range m.Root.Children {
		if n := buildNode(child, ""); n != nil {
			t.Root.Children = append(t.Root.Children, n)
		}
	}

	referenced := m.Referenced()
	for _, res := range m.Resources {
		if referenced[res.Identifier] {
			continue
		}
		if res.Kind == cartridge.KindUnsupported {
			t.Unsupported = append(t.Unsupported, res)
			continue
		}
		t.Loose = append(t.Loose, res)
	}
	return t
}

func buildNode(src *cartridge.Node, parentPath string) *Node {
	if src.IdentifierRef != "" {
		return &Node{
			ID:         src.ID,
			Title:      src.Title,
			Type:       "file",
			Path:       parentPath,
			ResourceID: src.IdentifierRef,
		}
	}
	n := &Node{
		ID:    src.ID,
		Title: src.Title,
		Type:  "folder",
		Path:  path.Join(parentPath, SanitizeName(src.Title)),
	}
	for _, child := range src.Children {
		if c := buildNode(child, n.Path); c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Walk visits every node in document order using an explicit stack, so
// pathological nesting depth cannot blow the call stack.
func (t *Tree) Walk(fn func(*Node)) {
	stack := []*Node{t.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(n)
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Combine wraps independently built trees under one synthetic root.
func Combine(trees []*Tree, looseFilesPath string) *Combined {
	c := &Combined{
		ID:             "combined",
		Title:          "Combined Session",
		Type:           "folder",
		LooseFilesPath: looseFilesPath,
	}
	for _, t := range trees {
		c.Cartridges = append(c.Cartridges, CartridgeEntry{
			CartridgeName: t.CartridgeName,
			Hierarchy:     t.Root,
		})
	}
	return c
}

// ResolvePath finds a folder inside a combined tree. The cartridge is
// selected by name first; the folder id is then resolved within that
// cartridge's subtree only, since ids may collide across cartridges.
func (c *Combined) ResolvePath(cartridgeName, folderID string) (*Node, bool) {
	for _, entry := range c.Cartridges {
		if entry.CartridgeName != cartridgeName {
			continue
		}
		stack := []*Node{entry.Hierarchy}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if n.ID == folderID && n.Type == "folder" {
				return n, true
			}
			for i := len(n.Children) - 1; i >= 0; i-- {
				stack = append(stack, n.Children[i])
			}
		}
		return nil, false
	}
	return nil, false
}

const invalidNameChars = `<>:"/\|?*`

// SanitizeName makes a display title safe to use as a file or directory
// name.
func SanitizeName(title string) string {
	out := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidNameChars, r) {
			return '_'
		}
		return r
	}, title)
	out = strings.Trim(out, " .")
	if out == "" {
		return "untitled"
	}
	return out
}
