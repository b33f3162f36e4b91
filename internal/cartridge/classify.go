package cartridge

import "strings"

// ResourceKind is the classifier's verdict for one resource.
type ResourceKind string

const (
	KindAssessmentXML ResourceKind = "assessment_xml"
	KindStaticFile    ResourceKind = "static_file"
	KindUnsupported   ResourceKind = "unsupported"
)

// Known Common Cartridge assessment type markers, matched case-insensitively
// as substrings of the resource type attribute. Covers the QTI 1.2 strings
// emitted across CC 1.1/1.2/1.3 (e.g.
// "imsqti_xmlv1p2/imscc_xmlv1p1/assessment", "imsqti_test_xmlv2p1").
var assessmentTypeMarkers = []string{"imsqti", "assessment", "quiz"}

// FileChecker reports whether a member path exists as a regular file.
// *Cartridge satisfies it.
type FileChecker interface {
	Exists(name string) bool
}

// ClassifyResource decides how one resource will be handled downstream.
func ClassifyResource(r *Resource, files FileChecker) ResourceKind {
	t := strings.ToLower(r.Type)
	for _, marker := range assessmentTypeMarkers {
		if strings.Contains(t, marker) {
			return KindAssessmentXML
		}
	}
	if href := r.MainHref(); href != "" && files.Exists(href) {
		return KindStaticFile
	}
	return KindUnsupported
}

// Classify fills in every resource's Kind and upgrades organization nodes
// that reference an assessment resource to KindAssessmentRef.
func (m *Manifest) Classify(files FileChecker) {
	for i := range m.Resources {
		m.Resources[i].Kind = ClassifyResource(&m.Resources[i], files)
	}
	stack := []*Node{m.Root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IdentifierRef != "" {
			if res, ok := m.Resource(n.IdentifierRef); ok && res.Kind == KindAssessmentXML {
				n.Kind = KindAssessmentRef
			}
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// AssessmentHref returns the XML member path to parse for an assessment
// resource: the href when it is an .xml file, otherwise the first .xml entry
// in the file list.
func (r *Resource) AssessmentHref() string {
	if strings.HasSuffix(strings.ToLower(r.Href), ".xml") {
		return r.Href
	}
	for _, f := range r.Files {
		if strings.HasSuffix(strings.ToLower(f), ".xml") {
			return f
		}
	}
	return ""
}
