package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"github.com/facturaIA/invoice-extraction-service/internal/errs"
	"github.com/facturaIA/invoice-extraction-service/internal/metadata"
	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

const defaultParseTimeout = 120 * time.Second

// Parser turns structured invoice text into a DraftRecord with the help of
// a reasoning service.
type Parser struct {
	reasoner Reasoner
	timeout  time.Duration
	schema   *jsonschema.Schema
	log      *logrus.Entry
}

// NewParser creates a parser. A zero timeout means 120s.
func NewParser(reasoner Reasoner, timeout time.Duration, log *logrus.Entry) (*Parser, error) {
	if timeout <= 0 {
		timeout = defaultParseTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	schema, err := compileSchema(draftSchema())
	if err != nil {
		return nil, err
	}
	return &Parser{
		reasoner: reasoner,
		timeout:  timeout,
		schema:   schema,
		log:      log.WithField("component", "parser"),
	}, nil
}

// Parse asks the reasoning service for the record. Transport failures come
// back as UpstreamUnavailable; an undecodable or misshapen answer as
// MalformedResponse. Nothing is retried.
func (p *Parser) Parse(ctx context.Context, text string, cand models.FieldCandidates) (DraftRecord, error) {
	highlighted := metadata.Highlight(text)
	markers := metadata.Markers(highlighted)
	prompt := extractionPrompt(highlighted, cand)

	log := p.log.WithFields(logrus.Fields{"prompt_chars": len(prompt), "highlighted": len(markers)})
	if len(markers) == 0 {
		log.Warn("no amounts highlighted in text")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	answer, err := p.reasoner.Ask(ctx, Question{
		Prompt:      prompt,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
	})
	if err != nil {
		if errs.KindOf(err) == "" {
			err = transportError(err)
		}
		log.WithError(err).Error("reasoning request failed")
		return DraftRecord{}, err
	}
	log = log.WithFields(logrus.Fields{
		"answer_chars": len(answer),
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	if strings.TrimSpace(answer) == "" {
		return DraftRecord{}, errs.Malformed(answer, errors.New("empty answer"))
	}

	doc, err := DecodeReply(answer)
	if err != nil {
		log.WithError(err).Error("could not decode answer")
		return DraftRecord{}, err
	}
	draft, err := p.decodeDraft(doc)
	if err != nil {
		log.WithError(err).Error("answer does not match draft shape")
		return DraftRecord{}, errs.Malformed(answer, err)
	}

	log.WithField("items", len(draft.Items)).Info("draft parsed")
	return draft, nil
}

func (p *Parser) decodeDraft(doc []byte) (DraftRecord, error) {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return DraftRecord{}, fmt.Errorf("unmarshal data: %w", err)
	}
	if err := p.schema.Validate(v); err != nil {
		return DraftRecord{}, fmt.Errorf("json does not match schema: %w", err)
	}
	var draft DraftRecord
	if err := json.Unmarshal(doc, &draft); err != nil {
		return DraftRecord{}, fmt.Errorf("decode draft: %w", err)
	}
	return draft, nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
