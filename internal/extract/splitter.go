package extract

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/louistrue/openBIM-service/internal/model"
)

// ErrNoStoreys is returned when a document has neither storeys nor any
// elements to bucket.
var ErrNoStoreys = errors.New("no storeys found in the document")

// UnassignedBucket names the output document collecting elements without
// a storey assignment.
const UnassignedBucket = "unassigned"

// StoreyDocument is one self-contained per-storey output: the project
// shell, the storey, its spaces and its elements.
type StoreyDocument struct {
	FileName   string
	StoreyID   string
	StoreyName string
	Doc        *model.Document
}

// SplitByStorey partitions a document's elements by their containing
// storey. Elements declared in a space roll up to the space's storey;
// elements with no resolvable container land in the unassigned bucket
// rather than being dropped.
func SplitByStorey(doc *model.Document) ([]StoreyDocument, error) {
	if len(doc.Storeys) == 0 && len(doc.Elements) == 0 {
		return nil, ErrNoStoreys
	}

	spaceStorey := make(map[string]string, len(doc.Spaces))
	storeySpaces := make(map[string][]*model.Space, len(doc.Storeys))
	for _, sp := range doc.Spaces {
		spaceStorey[sp.ID] = sp.StoreyID
		storeySpaces[sp.StoreyID] = append(storeySpaces[sp.StoreyID], sp)
	}

	known := make(map[string]bool, len(doc.Storeys))
	for _, s := range doc.Storeys {
		known[s.ID] = true
	}

	byStorey := make(map[string][]*model.Element)
	var unassigned []*model.Element
	for _, el := range doc.Elements {
		storeyID := el.ContainerID
		if parent, ok := spaceStorey[storeyID]; ok {
			storeyID = parent
		}
		if storeyID == "" || !known[storeyID] {
			unassigned = append(unassigned, el)
			continue
		}
		byStorey[storeyID] = append(byStorey[storeyID], el)
	}

	var out []StoreyDocument
	for i, storey := range doc.Storeys {
		out = append(out, StoreyDocument{
			FileName:   fmt.Sprintf("%d-%s.json", i, safeName(storey.Name)),
			StoreyID:   storey.ID,
			StoreyName: storeyDisplayName(storey),
			Doc:        shellDocument(doc, []*model.Storey{storey}, storeySpaces[storey.ID], byStorey[storey.ID]),
		})
	}

	if len(unassigned) > 0 {
		out = append(out, StoreyDocument{
			FileName:   UnassignedBucket + ".json",
			StoreyName: UnassignedBucket,
			Doc:        shellDocument(doc, nil, nil, unassigned),
		})
	}

	return out, nil
}

// shellDocument copies the minimal supporting structure (project shell,
// units) plus the given storey subset so the output stays independently
// valid.
func shellDocument(src *model.Document, storeys []*model.Storey, spaces []*model.Space, elements []*model.Element) *model.Document {
	return &model.Document{
		Schema:   src.Schema,
		Project:  src.Project,
		Units:    src.Units,
		Storeys:  storeys,
		Spaces:   spaces,
		Elements: elements,
	}
}

func storeyDisplayName(s *model.Storey) string {
	if s.Name == "" {
		return "Unnamed"
	}
	return s.Name
}

// safeName makes a storey name usable as an archive entry name.
func safeName(name string) string {
	if name == "" {
		return "Unnamed"
	}
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(name)
}

// WriteZip bundles the per-storey documents into a single archive.
func WriteZip(w io.Writer, docs []StoreyDocument) error {
	zw := zip.NewWriter(w)
	for _, sd := range docs {
		entry, err := zw.Create(sd.FileName)
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", sd.FileName, err)
		}
		if err := model.EncodeDocument(entry, sd.Doc); err != nil {
			return fmt.Errorf("write archive entry %s: %w", sd.FileName, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}
