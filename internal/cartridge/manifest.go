package cartridge

import (
	"encoding/xml"
	"fmt"
)

// NodeKind tells what an organization item stands for once its resource
// reference has been resolved.
type NodeKind string

const (
	KindFolder        NodeKind = "folder"
	KindAssessmentRef NodeKind = "assessment_ref"
	KindResourceRef   NodeKind = "resource_ref"
)

// Node is one entry of the manifest's organization tree. IDs are unique
// within one manifest but not across cartridges.
type Node struct {
	ID            string
	Title         string
	IdentifierRef string
	Kind          NodeKind
	Children      []*Node
}

// Resource is one <resource> entry of the manifest.
type Resource struct {
	Identifier string
	Type       string
	Href       string
	Files      []string
	Kind       ResourceKind
}

// MainHref returns the resource's primary member path: the href attribute,
// or the first listed file when the attribute is absent.
func (r *Resource) MainHref() string {
	if r.Href != "" {
		return r.Href
	}
	if len(r.Files) > 0 {
		return r.Files[0]
	}
	return ""
}

// Manifest is a parsed imsmanifest.xml: the organization tree plus the
// resource list in document order.
type Manifest struct {
	Title     string
	Root      *Node
	Resources []Resource

	index map[string]int // identifier -> Resources offset
}

// Resource looks up a resource record by identifier.
func (m *Manifest) Resource(id string) (*Resource, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return &m.Resources[i], true
}

// Referenced returns the set of resource identifiers reachable from the
// organization tree. Walks with an explicit stack; manifests can nest deep.
func (m *Manifest) Referenced() map[string]bool {
	refs := map[string]bool{}
	stack := []*Node{m.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IdentifierRef != "" {
			refs[n.IdentifierRef] = true
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return refs
}

// MalformedManifestError is fatal for one cartridge: no partial hierarchy is
// produced from a manifest that fails to parse or lacks required sections.
type MalformedManifestError struct {
	Cartridge string
	Reason    string
	Err       error
}

func (e *MalformedManifestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed manifest in %s: %s: %v", e.Cartridge, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed manifest in %s: %s", e.Cartridge, e.Reason)
}

func (e *MalformedManifestError) Unwrap() error { return e.Err }

// XML shapes. Field tags carry no namespace on purpose: encoding/xml then
// matches by local name, which keeps the parser tolerant of the default and
// versioned namespaces used across 1.1/1.2/1.3 manifests.
type imsManifest struct {
	XMLName       xml.Name          `xml:"manifest"`
	Metadata      imsMetadata       `xml:"metadata"`
	Organizations *imsOrganizations `xml:"organizations"`
	Resources     *imsResources     `xml:"resources"`
}

type imsMetadata struct {
	Lom imsLom `xml:"lom"`
}

type imsLom struct {
	General struct {
		Title struct {
			Strings []string `xml:"string"`
		} `xml:"title"`
	} `xml:"general"`
}

type imsOrganizations struct {
	Organizations []imsOrganization `xml:"organization"`
}

type imsOrganization struct {
	Items []imsItem `xml:"item"`
}

type imsItem struct {
	Identifier    string    `xml:"identifier,attr"`
	IdentifierRef string    `xml:"identifierref,attr"`
	Title         string    `xml:"title"`
	Items         []imsItem `xml:"item"`
}

type imsResources struct {
	Resources []imsResource `xml:"resource"`
}

type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Type       string    `xml:"type,attr"`
	Href       string    `xml:"href,attr"`
	Files      []imsFile `xml:"file"`
}

type imsFile struct {
	Href string `xml:"href,attr"`
}

const defaultCourseTitle = "Course Content"

// Manifest reads and parses the cartridge's imsmanifest.xml.
func (c *Cartridge) Manifest() (*Manifest, error) {
	var data []byte
	var err error
	for _, p := range []string{"imsmanifest.xml", "manifest.xml"} {
		if data, err = c.ReadFile(p); err == nil {
			break
		}
	}
	if err != nil {
		return nil, &MalformedManifestError{Cartridge: c.Name, Reason: "imsmanifest.xml not found", Err: err}
	}
	return ParseManifest(c.Name, data)
}

// ParseManifest parses manifest XML into the organization tree and resource
// records. The cartridge name is only used for error reporting.
func ParseManifest(cartName string, data []byte) (*Manifest, error) {
	var mf imsManifest
	if err := xml.Unmarshal(data, &mf); err != nil {
		return nil, &MalformedManifestError{Cartridge: cartName, Reason: "not well-formed XML", Err: err}
	}
	if mf.Organizations == nil {
		return nil, &MalformedManifestError{Cartridge: cartName, Reason: "missing <organizations>"}
	}
	if mf.Resources == nil {
		return nil, &MalformedManifestError{Cartridge: cartName, Reason: "missing <resources>"}
	}

	m := &Manifest{
		Title: courseTitle(mf),
		index: map[string]int{},
	}
	for _, r := range mf.Resources.Resources {
		res := Resource{
			Identifier: r.Identifier,
			Type:       r.Type,
			Href:       r.Href,
		}
		for _, f := range r.Files {
			if f.Href != "" {
				res.Files = append(res.Files, f.Href)
			}
		}
		m.index[res.Identifier] = len(m.Resources)
		m.Resources = append(m.Resources, res)
	}
	m.Root = organizationRoot(mf, m.Title)
	return m, nil
}

func courseTitle(mf imsManifest) string {
	for _, s := range mf.Metadata.Lom.General.Title.Strings {
		if s != "" {
			return s
		}
	}
	return defaultCourseTitle
}

// organizationRoot builds the Node tree. Schoology-style manifests wrap
// everything in a single top-level item; its children become the root's
// children and the course title replaces its own.
func organizationRoot(mf imsManifest, title string) *Node {
	root := &Node{ID: "root", Title: title, Kind: KindFolder}
	if len(mf.Organizations.Organizations) == 0 {
		return root
	}
	items := mf.Organizations.Organizations[0].Items
	if len(items) == 1 && items[0].IdentifierRef == "" {
		wrapper := items[0]
		if wrapper.Identifier != "" {
			root.ID = wrapper.Identifier
		}
		items = wrapper.Items
	}
	for i := range items {
		root.Children = append(root.Children, buildNode(&items[i]))
	}
	return root
}

func buildNode(it *imsItem) *Node {
	title := it.Title
	if title == "" {
		title = "Untitled"
	}
	n := &Node{
		ID:            it.Identifier,
		Title:         title,
		IdentifierRef: it.IdentifierRef,
		Kind:          KindFolder,
	}
	if it.IdentifierRef != "" {
		n.Kind = KindResourceRef
	}
	for i := range it.Items {
		n.Children = append(n.Children, buildNode(&it.Items[i]))
	}
	return n
}
