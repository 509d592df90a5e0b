package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/intercall/internal/meta"
	"github.com/roach88/intercall/internal/queue"
)

// PublishOptions holds the publish flags.
type PublishOptions struct {
	*RootOptions
	Key       string
	Data      string
	Subdomain string
	Timeout   time.Duration
	NoWait    bool

	// IDGenerator overrides the generator of correlation keys.
	IDGenerator meta.IDGenerator
}

// PublishResult is the output of publish.
type PublishResult struct {
	Lane string `json:"lane"`
	Key  string `json:"key"`
	Data any    `json:"data,omitempty"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <module> <queue>",
		Short: "Publish a task and wait for its result",
		Long: `Publish a task to a configured queue and wait for its result.

Without --key a correlation key is generated. In local queue mode the task
runs in this process; in network mode it is posted to the cluster listen
address, which must be served with the same inner_cookie.

Examples:
  intercall publish a-base echo --data '{"ok":true}'
  intercall publish a-base echo --subdomain acme --key job-1 --timeout 5s`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&opts.Key, "key", "k", "", "correlation key (default: generated)")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "JSON task data")
	cmd.Flags().StringVar(&opts.Subdomain, "subdomain", "", "subdomain the task runs for")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "how long to wait for the result")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "return once the task ran, without reporting its result")

	return cmd
}

func runPublish(cmd *cobra.Command, opts *PublishOptions, module, queueName string) error {
	f := newFormatter(cmd, opts.RootOptions)

	data, err := parseData(opts.Data)
	if err != nil {
		_ = f.Error(CodeInput, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --data", err)
	}

	gen := opts.IDGenerator
	if gen == nil {
		gen = meta.UUIDv7Generator{}
	}
	rt, err := newRuntime(opts.RootOptions, newLogger(opts.RootOptions, cmd.ErrOrStderr()), gen)
	if err != nil {
		_ = f.Error(CodeConfig, err.Error(), nil)
		return err
	}
	defer rt.Close()

	if _, ok := rt.registry.Queue(module, queueName); !ok {
		_ = f.Error(CodeInput, "queue not found: "+module+":"+queueName, nil)
		return NewExitError(ExitCommandError, "queue not found: "+module+":"+queueName)
	}

	task := queue.Task{
		Subdomain: opts.Subdomain,
		Module:    module,
		QueueName: queueName,
		Key:       opts.Key,
		Data:      data,
	}
	if task.Key == "" && !opts.NoWait {
		task.Key = gen.Generate()
	}

	results := make(chan queue.Result, 1)
	if task.Key != "" {
		rt.client.Subscribe(task.QueueKey(), func(r queue.Result) {
			select {
			case results <- r:
			default:
			}
		})
		defer rt.client.Unsubscribe(task.QueueKey())
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	f.VerboseLog("publishing to %s with key %q", task.QueueKey().Lane(), task.Key)
	if err := rt.client.Publish(task); err != nil {
		_ = f.Error(CodeAction, err.Error(), nil)
		return WrapExitError(ExitFailure, "publish failed", err)
	}

	if opts.NoWait {
		if err := rt.client.Drain(ctx); err != nil {
			_ = f.Error(CodeTimeout, "task did not finish in time", nil)
			return WrapExitError(ExitFailure, "timed out", err)
		}
		return f.Success(PublishResult{Lane: task.QueueKey().Lane(), Key: task.Key})
	}

	select {
	case r := <-results:
		if err := drain(ctx, rt); err != nil {
			f.VerboseLog("queue drain: %v", err)
		}
		if r.Err != nil {
			_ = f.Error(CodeAction, r.Err.Error(), r.Err.Envelope())
			return WrapExitError(ExitFailure, "task failed", r.Err)
		}
		return f.Success(PublishResult{Lane: task.QueueKey().Lane(), Key: task.Key, Data: r.Data})
	case <-ctx.Done():
		_ = f.Error(CodeTimeout, "no result before timeout", nil)
		return WrapExitError(ExitFailure, "timed out", ctx.Err())
	}
}

// drain waits for queued tasks started by this process.
func drain(ctx context.Context, rt *runtime) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()
	return rt.client.Drain(ctx)
}

