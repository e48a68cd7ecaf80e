// Package extract turns message attachments into stream-request inputs.
// Textual files contribute their content to the augmented query, images
// are passed through inline, and everything else is delegated to the
// extraction endpoint of the backend.
package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/go/pkg/workspace/apperrors"
	"github.com/loomworks/loom/go/pkg/workspace/model"
)

// Part is the extracted text of one attachment. Text is empty when
// extraction failed; the attachment still shows up in the query envelope
// so the model knows the file was there.
type Part struct {
	Filename string
	Text     string
}

// Extractor converts attachments into text parts and inline images.
type Extractor interface {
	Extract(ctx context.Context, attachments []model.Attachment) ([]Part, []model.InlineImage)
}

// Service extracts attachment content, delegating binary formats to a
// remote extraction endpoint.
type Service struct {
	endpoint   string
	httpClient *http.Client
	log        *zap.Logger
}

// NewService builds an extraction service against the given endpoint URL.
func NewService(endpoint string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		log:        log,
	}
}

// Extract processes every attachment concurrently. Extraction is best
// effort per file: a failed file yields an empty part and a warning, it
// never fails the exchange.
func (s *Service) Extract(ctx context.Context, attachments []model.Attachment) ([]Part, []model.InlineImage) {
	parts := make([]*Part, len(attachments))
	images := make([]*model.InlineImage, len(attachments))

	g, gctx := errgroup.WithContext(ctx)
	for i, att := range attachments {
		i, att := i, att
		g.Go(func() error {
			switch {
			case strings.HasPrefix(att.MediaType, "image/"):
				images[i] = &model.InlineImage{
					Name:      att.Name,
					MediaType: att.MediaType,
					Data:      base64.StdEncoding.EncodeToString(att.Data),
				}
			case isTextual(att.MediaType, att.Name):
				parts[i] = &Part{Filename: att.Name, Text: string(att.Data)}
			default:
				text, err := s.delegate(gctx, att)
				if err != nil {
					s.log.Warn("attachment extraction failed",
						zap.String("file", att.Name), zap.Error(err))
					text = ""
				}
				parts[i] = &Part{Filename: att.Name, Text: text}
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	var outParts []Part
	var outImages []model.InlineImage
	for i := range attachments {
		if parts[i] != nil {
			outParts = append(outParts, *parts[i])
		}
		if images[i] != nil {
			outImages = append(outImages, *images[i])
		}
	}
	return outParts, outImages
}

func isTextual(mediaType, name string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/x-yaml":
		return true
	}
	for _, ext := range []string{".txt", ".md", ".csv", ".json", ".yaml", ".yml", ".xml", ".log"} {
		if strings.HasSuffix(strings.ToLower(name), ext) {
			return true
		}
	}
	return false
}

// delegate posts the file to the extraction endpoint and returns the
// extracted text.
func (s *Service) delegate(ctx context.Context, att model.Attachment) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", att.Name)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeExtraction, "failed to build extraction request", err)
	}
	if _, err := part.Write(att.Data); err != nil {
		return "", apperrors.New(apperrors.ErrCodeExtraction, "failed to build extraction request", err)
	}
	if err := writer.Close(); err != nil {
		return "", apperrors.New(apperrors.ErrCodeExtraction, "failed to build extraction request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &body)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeExtraction, "failed to build extraction request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", apperrors.New(apperrors.ErrCodeExtraction, "extraction request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", apperrors.New(apperrors.ErrCodeExtraction,
			fmt.Sprintf("extraction endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.New(apperrors.ErrCodeExtraction, "undecodable extraction response", err)
	}
	return out.Text, nil
}

// AugmentQuery folds extracted file texts into the user query. Each file
// is wrapped in a named envelope so the model can attribute content.
func AugmentQuery(query string, parts []Part) string {
	if len(parts) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString(query)
	for _, p := range parts {
		b.WriteString("\n\n--- Attached file: ")
		b.WriteString(p.Filename)
		b.WriteString(" ---\n")
		b.WriteString(p.Text)
	}
	return b.String()
}
