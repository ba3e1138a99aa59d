package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind says how a document's text is obtained.
type Kind string

const (
	KindText        Kind = "text"
	KindPDF         Kind = "pdf"
	KindOffice      Kind = "office" // converted to PDF first
	KindImage       Kind = "image"  // attached as-is, no text
	KindUnsupported Kind = "unsupported"
)

// Info contains detected file type information
type Info struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

func (i *Info) Supported() bool { return i.Kind != KindUnsupported }

// Detector handles file type detection using magic bytes
type Detector struct{}

func New() *Detector {
	return &Detector{}
}

// DetectBytes detects the file type from content. name is only consulted to disambiguate
// container formats (ZIP, OLE) that share magic bytes.
func (d *Detector) DetectBytes(data []byte, name string) *Info {
	mtype := mimetype.Detect(data)
	mimeType := mtype.String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	extension := mtype.Extension()
	ext := strings.ToLower(filepath.Ext(name))

	switch mimeType {
	case "application/zip", "application/x-zip-compressed":
		if m, ok := zipOffice[ext]; ok {
			mimeType, extension = m, ext
		}
	case "application/x-ole-storage", "application/x-cfb":
		if m, ok := oleOffice[ext]; ok {
			mimeType, extension = m, ext
		}
	}

	info := &Info{MIMEType: mimeType, Extension: extension}
	classify(info)
	log.Debug().Str("mime", info.MIMEType).Str("kind", string(info.Kind)).Str("file", name).Msg("detected file type")
	return info
}

var zipOffice = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
}

var oleOffice = map[string]string{
	".doc": "application/msword",
	".xls": "application/vnd.ms-excel",
	".ppt": "application/vnd.ms-powerpoint",
}

var officeDescriptions = map[string]string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "Microsoft Word document",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "Microsoft PowerPoint presentation",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "Microsoft Excel spreadsheet",
	"application/msword":                              "Microsoft Word document (legacy)",
	"application/vnd.ms-powerpoint":                   "Microsoft PowerPoint presentation (legacy)",
	"application/vnd.ms-excel":                        "Microsoft Excel spreadsheet (legacy)",
	"application/vnd.oasis.opendocument.text":         "OpenDocument text",
	"application/vnd.oasis.opendocument.presentation": "OpenDocument presentation",
	"application/vnd.oasis.opendocument.spreadsheet":  "OpenDocument spreadsheet",
	"application/rtf":                                 "Rich Text Format",
	"text/rtf":                                        "Rich Text Format",
}

// classify determines how text is extracted
func classify(info *Info) {
	m := info.MIMEType
	if desc, ok := officeDescriptions[m]; ok {
		info.Kind, info.Description = KindOffice, desc
		return
	}

	switch {
	case m == "application/pdf":
		info.Kind, info.Description = KindPDF, "PDF document"
	case strings.HasPrefix(m, "text/"):
		info.Kind, info.Description = KindText, "Plain text file"
	case m == "application/json" || m == "application/xml":
		info.Kind, info.Description = KindText, "Structured text document"
	case strings.HasPrefix(m, "image/"):
		info.Kind, info.Description = KindImage, "Image file"
	default:
		info.Kind, info.Description = KindUnsupported, fmt.Sprintf("Unsupported file type: %s", m)
	}
}
