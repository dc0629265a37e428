// Package document turns input files into plain text for the pipeline.
// Plain text and Markdown are read as is, PDF text is extracted with
// dslipak/pdf and DOCX text is taken from word/document.xml.
package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"

	"github.com/turtacn/PII-Anonymizer/pkg/errors"
)

// DefaultMaxSize caps the input file size.
const DefaultMaxSize int64 = 50 << 20

// Format identifies a supported input type.
type Format string

const (
	FormatText Format = "text"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

var extensions = map[string]Format{
	".txt":  FormatText,
	".text": FormatText,
	".md":   FormatText,
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
}

// DetectFormat returns the format for path's extension.  Files without an
// extension are treated as text.
func DetectFormat(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return FormatText, true
	}
	f, ok := extensions[ext]
	return f, ok
}

// Reader extracts text from documents on disk.
type Reader struct {
	maxSize int64
}

// NewReader returns a Reader rejecting files larger than maxSize bytes.
// A non-positive maxSize uses DefaultMaxSize.
func NewReader(maxSize int64) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Reader{maxSize: maxSize}
}

// Read returns the text of the document at path.
func (r *Reader) Read(path string) (string, Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", errors.New(errors.CodeInputNotFound, "input file not found").WithDetail(path)
		}
		return "", "", errors.Wrapf(err, errors.CodeInternal, "stat %s", path)
	}
	if info.IsDir() {
		return "", "", errors.New(errors.CodeInputFormat, "input is a directory").WithDetail(path)
	}
	if info.Size() > r.maxSize {
		return "", "", errors.Newf(errors.CodeInputFormat, "input exceeds %d bytes", r.maxSize).WithDetail(path)
	}

	format, ok := DetectFormat(path)
	if !ok {
		return "", "", errors.Newf(errors.CodeInputFormat, "unsupported file type %q", filepath.Ext(path)).WithDetail(path)
	}

	var text string
	switch format {
	case FormatPDF:
		text, err = readPDF(path)
	case FormatDOCX:
		text, err = readDOCX(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			err = errors.Wrapf(err, errors.CodeInternal, "read %s", path)
		}
		text = string(data)
	}
	if err != nil {
		return "", format, err
	}
	return text, format, nil
}

func readPDF(path string) (text string, err error) {
	// The pdf package panics on some malformed files.
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Newf(errors.CodeInputFormat, "malformed PDF: %v", rec).WithDetail(path)
		}
	}()

	r, err := pdf.Open(path)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInputFormat, "open PDF").WithDetail(path)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInputFormat, "extract PDF text").WithDetail(path)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", errors.Wrap(err, errors.CodeInputFormat, "extract PDF text").WithDetail(path)
	}
	return buf.String(), nil
}

func readDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInputFormat, "open DOCX").WithDetail(path)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", errors.Wrap(err, errors.CodeInputFormat, "open word/document.xml").WithDetail(path)
		}
		defer rc.Close()
		text, err := documentXMLText(rc)
		if err != nil {
			return "", errors.Wrap(err, errors.CodeInputFormat, "parse word/document.xml").WithDetail(path)
		}
		return text, nil
	}
	return "", errors.New(errors.CodeInputFormat, "invalid DOCX: missing word/document.xml").WithDetail(path)
}

// documentXMLText keeps the character data of <w:t> runs.  Paragraphs end
// with a newline; <w:tab/> and <w:br/> become a tab and a newline.
func documentXMLText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

//Personal.AI order the ending
