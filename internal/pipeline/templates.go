package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// TemplateStore keeps annotation prompt templates and their few-shot
// examples per (language, layer, operation) in the file store. Language
// masters edit them; lookups fall back to the "default" language and then to
// the compiled-in templates.
type TemplateStore struct {
	fs  filestore.Store
	log *logger.Logger
}

func NewTemplateStore(fs filestore.Store, baseLog *logger.Logger) *TemplateStore {
	return &TemplateStore{fs: fs, log: baseLog.With("component", "TemplateStore")}
}

const defaultTemplateLanguage = "default"

func templateKey(language string, layer textmodel.Layer, operation string) string {
	return fmt.Sprintf("prompts/%s/%s.%s.template.txt", language, layer, operation)
}

func examplesKey(language string, layer textmodel.Layer, operation string) string {
	return fmt.Sprintf("prompts/%s/%s.%s.examples.json", language, layer, operation)
}

// Template returns the prompt template text for the given language, layer
// and operation, trying the language's own template first and the default
// language second.
func (s *TemplateStore) Template(ctx context.Context, language string, layer textmodel.Layer, operation string) (string, error) {
	for _, lang := range []string{language, defaultTemplateLanguage} {
		key := templateKey(lang, layer, operation)
		ok, err := s.fs.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			data, err := s.fs.Read(ctx, key)
			if err != nil {
				return "", err
			}
			return string(data), nil
		}
	}
	if t, ok := builtinTemplates[string(layer)+"."+operation]; ok {
		return t, nil
	}
	if t, ok := builtinTemplates[string(layer)]; ok {
		return t, nil
	}
	return "", clerror.New(clerror.ResourceMissing,
		"no prompt template for language=%s layer=%s operation=%s", language, layer, operation)
}

// Examples returns the few-shot examples for the given language, layer and
// operation, with the same fallback order as Template. Missing examples are
// not an error.
func (s *TemplateStore) Examples(ctx context.Context, language string, layer textmodel.Layer, operation string) ([][]string, error) {
	for _, lang := range []string{language, defaultTemplateLanguage} {
		key := examplesKey(lang, layer, operation)
		ok, err := s.fs.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, err := s.fs.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		var examples [][]string
		if err := json.Unmarshal(data, &examples); err != nil {
			return nil, clerror.Wrap(clerror.Validation, err, "examples file %s is not a JSON list of string tuples", key)
		}
		return examples, nil
	}
	return nil, nil
}

// SaveTemplate stores an edited template, archiving the previous version.
func (s *TemplateStore) SaveTemplate(ctx context.Context, language string, layer textmodel.Layer, operation, body string) error {
	if err := checkTemplate(body); err != nil {
		return err
	}
	key := templateKey(language, layer, operation)
	if err := s.archiveExisting(ctx, key); err != nil {
		return err
	}
	return s.fs.Write(ctx, key, []byte(body))
}

// SaveExamples stores edited few-shot examples, archiving the previous
// version.
func (s *TemplateStore) SaveExamples(ctx context.Context, language string, layer textmodel.Layer, operation string, examples [][]string) error {
	data, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		return err
	}
	key := examplesKey(language, layer, operation)
	if err := s.archiveExisting(ctx, key); err != nil {
		return err
	}
	return s.fs.Write(ctx, key, data)
}

func (s *TemplateStore) archiveExisting(ctx context.Context, key string) error {
	ok, err := s.fs.Exists(ctx, key)
	if err != nil || !ok {
		return err
	}
	dir := key[:strings.LastIndex(key, "/")]
	name := key[strings.LastIndex(key, "/")+1:]
	archived := fmt.Sprintf("%s/archive/%s_%s", dir, time.Now().UTC().Format("20060102T150405"), name)
	return s.fs.Copy(ctx, key, archived)
}

// checkTemplate rejects templates that dropped the substitution anchors the
// engine needs.
func checkTemplate(body string) error {
	for _, anchor := range []string{"{input}"} {
		if !strings.Contains(body, anchor) {
			return clerror.New(clerror.Validation, "template must contain the substitution element %s", anchor)
		}
	}
	return nil
}

// Substitution holds the values injected into a template.
type Substitution struct {
	L1       string
	L2       string
	Examples string
	Input    string
}

// Substitute fills a template's anchors.
func Substitute(template string, sub Substitution) string {
	r := strings.NewReplacer(
		"{l1_language}", sub.L1,
		"{l2_language}", sub.L2,
		"{examples}", sub.Examples,
		"{input}", sub.Input,
	)
	return r.Replace(template)
}

// FormatExamples renders few-shot example tuples as prompt lines.
func FormatExamples(examples [][]string) string {
	var b strings.Builder
	for _, ex := range examples {
		b.WriteString(strings.Join(ex, " -> "))
		b.WriteString("\n")
	}
	return b.String()
}
