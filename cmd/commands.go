package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"infrastructure/awsd"
	"infrastructure/configuration"
	"infrastructure/drift"
	"infrastructure/engine"
	"infrastructure/errors"
	"infrastructure/logger"
	"infrastructure/resources"
	"infrastructure/stack"
	"infrastructure/template"
)

// prepared is everything a command needs after configuration and declaration.
type prepared struct {
	cfg    *configuration.Config
	stack  *stack.Stack
	aws    *aws.Config
	logger *zap.Logger
}

// prepare loads configuration, reads the file inputs and declares the stack.
// AWS configuration is loaded only when lookup or the command needs it.
func prepare(c *cli.Context, needAWS bool) (*prepared, error) {
	log := logger.For(packageName)
	ctx := c.Context

	cfg, err := configuration.Initialize(c.String("env-file"))
	if err != nil {
		log.Error("Failed to load configuration",
			zap.String("operation", "config_load"),
			zap.Error(err),
		)
		return nil, err
	}
	if name := c.String("stack"); name != "" {
		if err := configuration.ValidateStackName(name); err != nil {
			return nil, err
		}
		cfg.StackName = name
	}

	p := &prepared{cfg: cfg, logger: log}
	if needAWS || c.Bool("lookup") {
		awsCfg, err := awsd.LoadConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p.aws = &awsCfg
	}

	inputs := stack.Inputs{SubnetID: cfg.SubnetID}
	if cfg.Profile.Compute {
		if inputs.UserData, err = readInput(cfg.UserDataPath); err != nil {
			return nil, err
		}
		if inputs.SubnetID == "" && c.Bool("lookup") {
			lookup, err := awsd.NewEC2ClientWithConfig(*p.aws).LookupVPC(ctx, cfg.VPCID)
			if err != nil {
				return nil, err
			}
			inputs.SubnetID = lookup.SubnetID
		}
	}
	if cfg.Profile.Schedule {
		if inputs.FunctionArchive, err = readInput(cfg.FunctionArchivePath); err != nil {
			return nil, err
		}
	}

	p.stack, err = stack.Build(cfg, cfg.Profile, inputs)
	if err != nil {
		log.Error("Failed to declare stack",
			zap.String("operation", "stack_build"),
			zap.Error(err),
		)
		return nil, err
	}
	return p, nil
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ErrInputRead, "error reading input file",
			map[string]interface{}{
				"path": path,
			}, err)
	}
	return data, nil
}

func (p *prepared) render() (*template.Template, error) {
	return template.Render(p.stack.Graph, template.Options{
		Description: fmt.Sprintf("%s (%s)", p.cfg.StackName, p.cfg.Profile.Name),
		Outputs:     p.stack.Outputs,
	})
}

func runSynth(c *cli.Context) error {
	p, err := prepare(c, false)
	if err != nil {
		return err
	}
	tmpl, err := p.render()
	if err != nil {
		return err
	}
	body, err := tmpl.Encode(c.String("format"))
	if err != nil {
		return err
	}

	if at := p.cfg.Profile.StopSchedule; p.cfg.Profile.Schedule && at != nil {
		if next, err := resources.Daily(at.Hour, at.Minute).Next(time.Now()); err == nil {
			p.logger.Info("Next scheduled stop",
				zap.String("operation", "synth"),
				zap.Time("at", next),
			)
		}
	}

	out := c.String("out")
	if out == "" {
		_, err = c.App.Writer.Write(body)
		return err
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return errors.New(errors.ErrRender, "error writing template",
			map[string]interface{}{
				"path": out,
			}, err)
	}
	p.logger.Info("Template written",
		zap.String("operation", "synth"),
		zap.String("path", out),
		zap.Int("size", len(body)),
	)
	return nil
}

func runGraph(c *cli.Context) error {
	p, err := prepare(c, false)
	if err != nil {
		return err
	}
	snap, err := p.stack.Graph.Snapshot()
	if err != nil {
		return errors.New(errors.ErrGraph, "error exporting graph", map[string]interface{}{}, err)
	}

	switch format := c.String("format"); format {
	case "dot":
		_, err = io.WriteString(c.App.Writer, snap.DOT())
	case "mermaid":
		_, err = io.WriteString(c.App.Writer, snap.Mermaid())
	case "json":
		var data []byte
		if data, err = snap.JSON(); err == nil {
			_, err = c.App.Writer.Write(append(data, '\n'))
		}
	default:
		return errors.New(errors.ErrConfigInvalid, "unknown graph format",
			map[string]interface{}{
				"format": format,
			}, nil)
	}
	return err
}

func runDeploy(c *cli.Context) error {
	p, err := prepare(c, true)
	if err != nil {
		return err
	}
	tmpl, err := p.render()
	if err != nil {
		return err
	}
	body, err := tmpl.JSON()
	if err != nil {
		return err
	}

	eng := engine.New(*p.aws, p.cfg.AssetBucket)
	if a := p.stack.Asset; a != nil {
		if _, err := eng.PublishAsset(c.Context, a.Bucket, a.Key, a.Data); err != nil {
			return err
		}
	}

	result, err := eng.Deploy(c.Context, p.cfg.StackName, body)
	if err != nil {
		p.logger.Error("Deployment failed",
			zap.String("operation", "deploy"),
			zap.String("stack", p.cfg.StackName),
			zap.Error(err),
		)
		return err
	}
	return printOutputs(c.App.Writer, result)
}

func printOutputs(w io.Writer, result *engine.DeployResult) error {
	status := result.Operation
	if result.NoChanges {
		status = "NO_CHANGES"
	}
	if _, err := fmt.Fprintf(w, "%s %s\n", status, result.StackID); err != nil {
		return err
	}
	keys := make([]string, 0, len(result.Outputs))
	for k := range result.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s = %s\n", k, result.Outputs[k]); err != nil {
			return err
		}
	}
	return nil
}

func runDrift(c *cli.Context) error {
	p, err := prepare(c, true)
	if err != nil {
		return err
	}

	service := drift.NewDriftService(
		engine.New(*p.aws, p.cfg.AssetBucket),
		awsd.NewEC2ClientWithConfig(*p.aws),
		p.stack.Graph,
		p.cfg.StackName,
		zap.L(),
	)
	service.Timeout = time.Duration(p.cfg.ComparisonTimeout) * time.Second

	if c.Bool("once") {
		findings, err := service.Check(c.Context)
		if err != nil {
			return err
		}
		if len(findings) == 0 {
			_, err = fmt.Fprintln(c.App.Writer, drift.NoDriftMessage)
			return err
		}
		for _, f := range findings {
			if _, err := fmt.Fprintln(c.App.Writer, f.String()); err != nil {
				return err
			}
		}
		return nil
	}

	interval := c.Duration("interval")
	if interval == 0 {
		interval = time.Duration(p.cfg.CheckInterval) * time.Minute
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = service.RunLoop(ctx, interval)
	if ctx.Err() != nil && errors.Is(err, errors.ErrDriftChecker) {
		p.logger.Info("Shutdown complete",
			zap.String("operation", "shutdown_complete"),
		)
		return nil
	}
	return err
}
