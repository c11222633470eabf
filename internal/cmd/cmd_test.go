package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/agritutor/agritutor/internal/config"
	"github.com/agritutor/agritutor/internal/media"
	"github.com/agritutor/agritutor/internal/output"
	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/tutor"
)

type recordingAsker struct {
	ask      *tutor.AskRequest
	template *tutor.TemplateRequest
	lesson   *tutor.LessonRequest
}

func (r *recordingAsker) Ask(_ context.Context, req tutor.AskRequest) (*tutor.Answer, error) {
	r.ask = &req
	return &tutor.Answer{Text: "ok", Prompt: req.Prompt}, nil
}

func (r *recordingAsker) AskTemplate(_ context.Context, req tutor.TemplateRequest) (*tutor.Answer, error) {
	r.template = &req
	return &tutor.Answer{Text: "ok", TemplateID: req.TemplateID}, nil
}

func (r *recordingAsker) Lesson(_ context.Context, req tutor.LessonRequest) (*tutor.Answer, error) {
	r.lesson = &req
	return &tutor.Answer{Text: "ok"}, nil
}

func defaultCatalog(t *testing.T) *prompt.Catalog {
	t.Helper()
	catalog, err := prompt.Default()
	require.NoError(t, err)
	return catalog
}

func TestParseVars(t *testing.T) {
	values, err := parseVars([]string{"TOPIC=Soil pH", "REGION=Punjab", "TOPIC=Mulching", "NOTE=a=b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TOPIC", "REGION", "NOTE"}, values.Keys())

	topic, _ := values.Get("TOPIC")
	assert.Equal(t, "Mulching", topic)
	note, _ := values.Get("NOTE")
	assert.Equal(t, "a=b", note)

	trimmed, err := parseVars([]string{" REGION = Punjab "})
	require.NoError(t, err)
	assert.Equal(t, []string{"REGION"}, trimmed.Keys())
	region, _ := trimmed.Get("REGION")
	assert.Equal(t, " Punjab ", region)

	for _, bad := range []string{"TOPIC", "=value", " =x"} {
		_, err := parseVars([]string{bad})
		assert.Error(t, err, bad)
	}

	empty, err := parseVars(nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestFillTemplate(t *testing.T) {
	catalog := defaultCatalog(t)

	t.Run("Complete", func(t *testing.T) {
		result, err := fillTemplate(catalog, "regional-context", prompt.NewValues("TOPIC", "Drip irrigation", "REGION", "Punjab"), false)
		require.NoError(t, err)
		assert.True(t, result.Complete)
		assert.Empty(t, result.Missing)
		assert.Contains(t, result.Prompt, "Drip irrigation")
		assert.Contains(t, result.Prompt, "Punjab")
		assert.NotContains(t, result.Prompt, "{REGION}")
	})

	t.Run("Incomplete", func(t *testing.T) {
		result, err := fillTemplate(catalog, "regional-context", prompt.NewValues("TOPIC", "Drip irrigation"), false)
		var incomplete *tutor.IncompleteError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, []string{"REGION"}, incomplete.Missing)
		assert.Equal(t, "regional-context", result.TemplateID)
		assert.False(t, result.Complete)
		assert.Contains(t, result.Prompt, "{REGION}")
	})

	t.Run("AllowIncomplete", func(t *testing.T) {
		result, err := fillTemplate(catalog, "regional-context", prompt.Values{}, true)
		require.NoError(t, err)
		assert.False(t, result.Complete)
		assert.Equal(t, []string{"TOPIC", "REGION"}, result.Missing)
	})

	t.Run("UnknownTemplate", func(t *testing.T) {
		result, err := fillTemplate(catalog, "no-such-template", prompt.Values{}, true)
		require.ErrorIs(t, err, prompt.ErrTemplateNotFound)
		assert.Empty(t, result.TemplateID)
	})
}

func TestWriteTemplates(t *testing.T) {
	catalog := defaultCatalog(t)
	formatter := output.NewFormatter(output.FormatJSON)

	var buf bytes.Buffer
	require.NoError(t, writeTemplates(&buf, formatter, catalog, " revision "))
	var templates []prompt.Template
	require.NoError(t, json.Unmarshal(buf.Bytes(), &templates))
	require.NotEmpty(t, templates)
	for _, tmpl := range templates {
		assert.Equal(t, "revision", tmpl.Category)
	}

	buf.Reset()
	require.NoError(t, writeTemplates(&buf, formatter, catalog, "weather"))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, writeTemplates(&buf, formatter, catalog, ""))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &templates))
	assert.Len(t, templates, catalog.Len())
}

func TestWriteCategories(t *testing.T) {
	catalog := defaultCatalog(t)

	var buf bytes.Buffer
	require.NoError(t, writeCategories(&buf, output.NewFormatter(output.FormatJSON), catalog))
	var categories []output.CategorySummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &categories))
	require.Len(t, categories, 6)
	assert.Equal(t, "lesson", categories[0].ID)
	assert.Equal(t, "contextual", categories[5].ID)
	assert.Equal(t, 1, categories[5].Templates)

	buf.Reset()
	require.NoError(t, writeCategories(&buf, output.NewFormatter(output.FormatTable), catalog))
	assert.Contains(t, buf.String(), "contextual")
}

func TestLintCatalog(t *testing.T) {
	formatter := output.NewFormatter(output.FormatJSON)

	var buf bytes.Buffer
	require.NoError(t, lintCatalog(&buf, formatter, defaultCatalog(t)))
	assert.Equal(t, "[]\n", buf.String())

	broken, err := prompt.NewCatalog("test",
		[]prompt.Category{{ID: "lesson", Name: "Lessons"}},
		[]prompt.Template{{ID: "t1", Category: "lesson", Title: "T", Body: "Explain {TOPIC} in {REGION}", Variables: []string{"TOPIC"}}},
	)
	require.NoError(t, err)

	buf.Reset()
	err = lintCatalog(&buf, formatter, broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 issue(s)")
	var issues []prompt.Issue
	require.NoError(t, json.Unmarshal(buf.Bytes(), &issues))
	require.Len(t, issues, 1)
	assert.Equal(t, prompt.IssueUndeclaredVariable, issues[0].Kind)
	assert.Equal(t, "REGION", issues[0].Name)
}

func TestRunAsk(t *testing.T) {
	t.Run("FreeTextIsWrapped", func(t *testing.T) {
		rec := &recordingAsker{}
		_, err := runAsk(context.Background(), rec, media.Options{}, askOptions{Model: "m"}, "  what is crop rotation?  ")
		require.NoError(t, err)
		require.NotNil(t, rec.ask)
		assert.Equal(t, "what is crop rotation?", rec.ask.Prompt)
		assert.True(t, rec.ask.Wrap)
		assert.Equal(t, "m", rec.ask.Model)
		assert.Nil(t, rec.template)
	})

	t.Run("RawIsNotWrapped", func(t *testing.T) {
		rec := &recordingAsker{}
		_, err := runAsk(context.Background(), rec, media.Options{}, askOptions{Raw: true, NoCache: true}, "NPK")
		require.NoError(t, err)
		assert.False(t, rec.ask.Wrap)
		assert.True(t, rec.ask.NoCache)
	})

	t.Run("TemplateRoutesWithOrderedValues", func(t *testing.T) {
		rec := &recordingAsker{}
		opts := askOptions{Template: "weak-area-comparison", Vars: []string{"WEAK_TOPIC=Soil pH", "STRONG_TOPIC=Irrigation"}}
		_, err := runAsk(context.Background(), rec, media.Options{}, opts, "")
		require.NoError(t, err)
		require.NotNil(t, rec.template)
		assert.Nil(t, rec.ask)
		assert.Equal(t, "weak-area-comparison", rec.template.TemplateID)
		assert.Equal(t, []string{"WEAK_TOPIC", "STRONG_TOPIC"}, rec.template.Values.Keys())
	})

	t.Run("VarsRequireTemplate", func(t *testing.T) {
		rec := &recordingAsker{}
		_, err := runAsk(context.Background(), rec, media.Options{}, askOptions{Vars: []string{"A=b"}}, "x")
		require.Error(t, err)
		assert.Nil(t, rec.ask)
	})

	t.Run("FileAttachment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("Leaves yellowing after heavy rain."), 0o600))

		rec := &recordingAsker{}
		_, err := runAsk(context.Background(), rec, media.Options{}, askOptions{Files: []string{path}}, "")
		require.NoError(t, err)
		require.Len(t, rec.ask.Attachments, 1)
		assert.Equal(t, media.MIMEText, rec.ask.Attachments[0].MIMEType)
	})
}

func TestPrepareAttachmentsRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a picture"), 0o600))

	_, err := prepareAttachments([]string{path}, nil, media.Options{})
	require.ErrorIs(t, err, media.ErrUnsupportedMedia)

	_, err = prepareAttachments(nil, []string{filepath.Join(t.TempDir(), "missing.pdf")}, media.Options{})
	require.Error(t, err)
}

func TestRunLesson(t *testing.T) {
	rec := &recordingAsker{}
	_, err := runLesson(context.Background(), rec, lessonOptions{Purpose: "Remediate", StrongTopic: " Irrigation ", Region: "Kerala"}, " Soil pH ")
	require.NoError(t, err)
	require.NotNil(t, rec.lesson)
	assert.Equal(t, "Soil pH", rec.lesson.Topic)
	assert.Equal(t, prompt.PurposeRemediate, rec.lesson.Purpose)
	assert.Equal(t, "Irrigation", rec.lesson.Extra.StrongTopic)
	assert.Equal(t, "Kerala", rec.lesson.Extra.Region)

	_, err = runLesson(context.Background(), &recordingAsker{}, lessonOptions{Purpose: "explain"}, "  ")
	assert.Error(t, err)

	_, err = runLesson(context.Background(), &recordingAsker{}, lessonOptions{Purpose: "dance"}, "Soil")
	assert.ErrorIs(t, err, prompt.ErrUnknownPurpose)
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render(&buf, "hello", nil))
	assert.Equal(t, "hello\n", buf.String())

	buf.Reset()
	require.NoError(t, render(&buf, "", nil))
	assert.Empty(t, buf.String())

	boom := errors.New("boom")
	assert.ErrorIs(t, render(&buf, "x", boom), boom)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "soil-ph-remediate", sanitizeFilename("Soil pH-remediate"))
	assert.Equal(t, "output", sanitizeFilename("  ...  "))
	assert.Equal(t, "txt", outputExtension(output.FormatTable))
	assert.Equal(t, "md", outputExtension(output.FormatMarkdown))
}

func newSinkCommand(t *testing.T, out, outDir string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	c := &cobra.Command{Use: "test"}
	addOutputFlags(c)
	require.NoError(t, c.Flags().Set("out", out))
	require.NoError(t, c.Flags().Set("out-dir", outDir))
	var stdout, stderr bytes.Buffer
	c.SetOut(&stdout)
	c.SetErr(&stderr)
	return c, &stdout
}

func TestWriteToSink(t *testing.T) {
	t.Run("Stdout", func(t *testing.T) {
		c, stdout := newSinkCommand(t, "", "")
		require.NoError(t, writeToSink(c, "answer", "text", nil))
		assert.Equal(t, "text\n", stdout.String())
	})

	t.Run("OutDir", func(t *testing.T) {
		prev := outputFormat
		outputFormat = "json"
		t.Cleanup(func() { outputFormat = prev })

		dir := t.TempDir()
		c, stdout := newSinkCommand(t, "", dir)
		require.NoError(t, writeToSink(c, "Soil pH-quiz", `{"text":"ok"}`, nil))
		assert.Empty(t, stdout.String())

		data, err := os.ReadFile(filepath.Join(dir, "soil-ph-quiz.json"))
		require.NoError(t, err)
		assert.Equal(t, "{\"text\":\"ok\"}\n", string(data))
	})

	t.Run("MutuallyExclusive", func(t *testing.T) {
		c, _ := newSinkCommand(t, filepath.Join(t.TempDir(), "a.txt"), t.TempDir())
		assert.Error(t, writeToSink(c, "x", "y", nil))
	})
}

func TestWriteInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agritutor", "config.yaml")
	require.NoError(t, writeInitConfig(path, "secret-key", false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "tutor")
	assert.Contains(t, string(data), "api_key: secret-key")
	assert.Contains(t, string(data), config.DefaultGeminiModel)

	assert.Error(t, writeInitConfig(path, "", false), "existing file needs --force")
	require.NoError(t, writeInitConfig(path, "", true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-key")
}

func TestRunDoctorChecks(t *testing.T) {
	t.Run("ConfigError", func(t *testing.T) {
		checks := runDoctorChecks(context.Background(), nil, errors.New("bad port"))
		last := checks[len(checks)-1]
		assert.Equal(t, "Configuration", last.Name)
		assert.Equal(t, checkFail, last.Status)
		assert.Equal(t, "bad port", last.Detail)
	})

	t.Run("CacheDisabled", func(t *testing.T) {
		cfg := &config.Config{}
		checks := runDoctorChecks(context.Background(), cfg, nil)

		byName := map[string]doctorCheck{}
		for _, check := range checks {
			byName[check.Name] = check
		}
		assert.Equal(t, checkOK, byName["Prompt catalog"].Status)
		assert.Equal(t, checkOK, byName["Response cache"].Status)
		assert.Contains(t, byName["Response cache"].Detail, "disabled")
		assert.Equal(t, checkWarn, byName["Provider for chat"].Status, "no providers configured")
	})

	t.Run("BadCatalogPath", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")
		assert.Equal(t, checkFail, catalogCheck(cfg).Status)
	})
}

func TestWriteVersion(t *testing.T) {
	prev := versionInfo
	SetVersionInfo("1.4.0", "abc1234", "2026-10-01")
	t.Cleanup(func() { versionInfo = prev })

	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, false))
	assert.Equal(t, "agritutor 1.4.0\n", buf.String())

	buf.Reset()
	require.NoError(t, writeVersion(&buf, true))
	assert.Contains(t, buf.String(), "Commit: abc1234")
	assert.Contains(t, buf.String(), "Gofulmen: ")
	assert.Contains(t, buf.String(), "Catalog: ")
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"categories", "templates", "show", "fill", "catalog", "ask", "lesson", "cache", "serve", "version", "doctor", "envinfo"} {
		assert.True(t, names[want], want)
	}
	assert.Equal(t, "agritutor", rootCmd.Use)
}
