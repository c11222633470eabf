package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/media"
	"github.com/agritutor/agritutor/internal/metrics"
	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/tutor"
)

type askOptions struct {
	Template string
	Vars     []string
	Images   []string
	Files    []string
	Model    string
	Raw      bool
	NoCache  bool
	Timeout  time.Duration
}

type lessonOptions struct {
	Purpose     string
	StrongTopic string
	Region      string
	Model       string
	NoCache     bool
	Timeout     time.Duration
}

var (
	askOpts    askOptions
	lessonOpts lessonOptions
)

// asker is the part of *tutor.Service the commands call.
type asker interface {
	Ask(ctx context.Context, req tutor.AskRequest) (*tutor.Answer, error)
	AskTemplate(ctx context.Context, req tutor.TemplateRequest) (*tutor.Answer, error)
	Lesson(ctx context.Context, req tutor.LessonRequest) (*tutor.Answer, error)
}

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask the tutor a question",
	Long: `Ask the configured model a question.

Free text is framed for the tutor persona unless --raw is set. With
--template the named catalog template is filled from --var values and sent
instead. Crop photos (--image) and notes or PDFs (--file) are attached; an
image with no question gets an analysis prompt.`,
	Example: `  agritutor ask "What is crop rotation?"
  agritutor ask --image leaf.jpg "What is wrong with this plant?"
  agritutor ask --template weak-area-comparison --var WEAK_TOPIC="Soil pH" --var STRONG_TOPIC=Irrigation`,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := currentFormatter()
		if err != nil {
			return err
		}
		rt, err := newTutorRuntime(cmd.Context(), !askOpts.NoCache)
		if err != nil {
			return err
		}
		defer rt.Close()

		answer, err := runAsk(cmd.Context(), rt.Service, rt.Config.Media, askOpts, strings.Join(args, " "))
		metrics.RecordCommand("ask", err == nil)
		if err != nil {
			return err
		}
		name := "answer"
		if askOpts.Template != "" {
			name = askOpts.Template
		}
		rendered, err := formatter.FormatAnswer(answer)
		return writeToSink(cmd, name, rendered, err)
	},
}

var lessonCmd = &cobra.Command{
	Use:   "lesson <topic...>",
	Short: "Generate a lesson for a topic",
	Long: `Generate lesson content for a topic.

Purposes: explain (default), quiz, remediate, summary, visual, regional.
remediate compares the topic against --strong-topic; regional uses --region
(default India).`,
	Example: `  agritutor lesson "Soil pH" --purpose remediate --strong-topic Irrigation
  agritutor lesson Agroforestry --purpose regional --region Kerala`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := currentFormatter()
		if err != nil {
			return err
		}
		rt, err := newTutorRuntime(cmd.Context(), !lessonOpts.NoCache)
		if err != nil {
			return err
		}
		defer rt.Close()

		topic := strings.Join(args, " ")
		answer, err := runLesson(cmd.Context(), rt.Service, lessonOpts, topic)
		metrics.RecordCommand("lesson", err == nil)
		if err != nil {
			return err
		}
		rendered, err := formatter.FormatAnswer(answer)
		return writeToSink(cmd, topic+"-"+lessonOpts.Purpose, rendered, err)
	},
}

func init() {
	rootCmd.AddCommand(askCmd, lessonCmd)

	askCmd.Flags().StringVarP(&askOpts.Template, "template", "t", "", "catalog template id to fill and send")
	askCmd.Flags().StringArrayVar(&askOpts.Vars, "var", nil, "template variable as KEY=VALUE (repeatable)")
	askCmd.Flags().StringArrayVar(&askOpts.Images, "image", nil, "image to attach (repeatable)")
	askCmd.Flags().StringArrayVar(&askOpts.Files, "file", nil, "PDF or text file to attach (repeatable)")
	askCmd.Flags().StringVar(&askOpts.Model, "model", "", "model override")
	askCmd.Flags().BoolVar(&askOpts.Raw, "raw", false, "send the question without the tutor framing")
	askCmd.Flags().BoolVar(&askOpts.NoCache, "no-cache", false, "bypass the response cache")
	askCmd.Flags().DurationVar(&askOpts.Timeout, "timeout", 0, "request timeout (default tutor.default_timeout)")

	addOutputFlags(askCmd)

	lessonCmd.Flags().StringVarP(&lessonOpts.Purpose, "purpose", "p", string(prompt.PurposeExplain), "lesson purpose")
	lessonCmd.Flags().StringVar(&lessonOpts.StrongTopic, "strong-topic", "", "topic the learner already knows (remediate)")
	lessonCmd.Flags().StringVar(&lessonOpts.Region, "region", "", "region for local examples (regional)")
	lessonCmd.Flags().StringVar(&lessonOpts.Model, "model", "", "model override")
	lessonCmd.Flags().BoolVar(&lessonOpts.NoCache, "no-cache", false, "bypass the response cache")
	lessonCmd.Flags().DurationVar(&lessonOpts.Timeout, "timeout", 0, "request timeout (default tutor.default_timeout)")
	addOutputFlags(lessonCmd)
}

func runAsk(ctx context.Context, svc asker, mediaOpts media.Options, opts askOptions, question string) (*tutor.Answer, error) {
	attachments, err := prepareAttachments(opts.Images, opts.Files, mediaOpts)
	if err != nil {
		return nil, err
	}

	if id := strings.TrimSpace(opts.Template); id != "" {
		values, err := parseVars(opts.Vars)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(question) != "" {
			logger().Warn("Question text is ignored when --template is set", zap.String("template", id))
		}
		return svc.AskTemplate(ctx, tutor.TemplateRequest{
			TemplateID:  id,
			Values:      values,
			Attachments: attachments,
			Model:       opts.Model,
			Timeout:     opts.Timeout,
			NoCache:     opts.NoCache,
		})
	}
	if len(opts.Vars) > 0 {
		return nil, fmt.Errorf("--var requires --template")
	}

	return svc.Ask(ctx, tutor.AskRequest{
		Prompt:      strings.TrimSpace(question),
		Attachments: attachments,
		Model:       opts.Model,
		Wrap:        !opts.Raw,
		Timeout:     opts.Timeout,
		NoCache:     opts.NoCache,
	})
}

func runLesson(ctx context.Context, svc asker, opts lessonOptions, topic string) (*tutor.Answer, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	purpose, err := prompt.ParsePurpose(opts.Purpose)
	if err != nil {
		return nil, err
	}
	return svc.Lesson(ctx, tutor.LessonRequest{
		Topic:   topic,
		Purpose: purpose,
		Extra: prompt.Extra{
			StrongTopic: strings.TrimSpace(opts.StrongTopic),
			Region:      strings.TrimSpace(opts.Region),
		},
		Model:   opts.Model,
		Timeout: opts.Timeout,
		NoCache: opts.NoCache,
	})
}

// prepareAttachments loads images then files, in flag order. Paths given as
// images must decode as images.
func prepareAttachments(images, files []string, opts media.Options) ([]media.Attachment, error) {
	out := make([]media.Attachment, 0, len(images)+len(files))
	for _, path := range images {
		att, err := media.PrepareFile(path, opts)
		if err != nil {
			return nil, err
		}
		if !att.IsImage() {
			return nil, fmt.Errorf("%s: %w: %s is not an image", path, media.ErrUnsupportedMedia, att.MIMEType)
		}
		out = append(out, att)
	}
	for _, path := range files {
		att, err := media.PrepareFile(path, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	return out, nil
}
