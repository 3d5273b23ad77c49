package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func pdfConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Merge concatenates PDF documents in order.
func Merge(docs ...[]byte) ([]byte, error) {
	var inputs []io.ReadSeeker
	for _, d := range docs {
		if len(d) > 0 {
			inputs = append(inputs, bytes.NewReader(d))
		}
	}
	switch len(inputs) {
	case 0:
		return nil, errors.New("render: merge: no documents")
	case 1:
		for _, d := range docs {
			if len(d) > 0 {
				return d, nil
			}
		}
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(inputs, &buf, false, pdfConfig()); err != nil {
		return nil, fmt.Errorf("render: merge: %w", err)
	}
	return buf.Bytes(), nil
}

// PageCount reports the number of pages in doc.
func PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), pdfConfig())
	if err != nil {
		return 0, fmt.Errorf("render: page count: %w", err)
	}
	return n, nil
}

// IsPDF reports whether data carries a PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF"))
}

// ImageToPDF places a JPEG, PNG or GIF on a single A4 page, scaled to fit.
func ImageToPDF(data []byte, mimeType string) ([]byte, error) {
	var kind string
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		kind = "JPG"
	case "image/png":
		kind = "PNG"
	case "image/gif":
		kind = "GIF"
	default:
		return nil, fmt.Errorf("render: unsupported image type %q", mimeType)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	opts := fpdf.ImageOptions{ImageType: kind}
	info := pdf.RegisterImageOptionsReader("upload", opts, bytes.NewReader(data))
	if pdf.Err() || info == nil {
		return nil, fmt.Errorf("render: decode image: %w", pdf.Error())
	}

	const maxW, maxH = 190.0, 277.0
	w, h := info.Width(), info.Height()
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}
	pdf.ImageOptions("upload", 10, 10, w*scale, h*scale, false, opts, 0, "")
	return output(pdf)
}

// Stamp prints two text blocks on the last page: left at the bottom left and right
// at the bottom right. Empty blocks are skipped.
func Stamp(doc []byte, left, right string) ([]byte, error) {
	out := doc
	for _, s := range []struct{ text, pos string }{{left, "bl"}, {right, "br"}} {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		desc := fmt.Sprintf("font:Helvetica, points:10, pos:%s, off:30 40, scale:1 abs, rot:0, fillc:#000000, op:1", s.pos)
		if s.pos == "br" {
			desc = strings.Replace(desc, "off:30 40", "off:-30 40", 1)
		}
		wm, err := api.TextWatermark(s.text, desc, true, false, types.POINTS)
		if err != nil {
			return nil, fmt.Errorf("render: stamp: %w", err)
		}
		var buf bytes.Buffer
		if err := api.AddWatermarks(bytes.NewReader(out), &buf, []string{"l"}, wm, pdfConfig()); err != nil {
			return nil, fmt.Errorf("render: stamp: %w", err)
		}
		out = buf.Bytes()
	}
	return out, nil
}
