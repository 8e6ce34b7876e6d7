// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflowagent

import (
	"fmt"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// ParallelConfig defines the configuration for a ParallelAgent.
type ParallelConfig struct {
	Name        string
	Description string
	SubAgents   []agent.Agent
}

// NewParallel creates a ParallelAgent.
//
// All sub-agents receive the same input and run concurrently, each on its
// own history branch. The parallel agent completes once every child has
// completed. The first child error cancels the others.
//
//	cityInfo, _ := workflowagent.NewParallel(workflowagent.ParallelConfig{
//	    Name:      "city_info",
//	    SubAgents: []agent.Agent{researcher, weather},
//	})
func NewParallel(cfg ParallelConfig) (agent.Agent, error) {
	if len(cfg.SubAgents) == 0 {
		return nil, fmt.Errorf("parallel agent %q: at least one sub-agent is required", cfg.Name)
	}
	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   cfg.SubAgents,
		Run:         runParallel,
	})
}

// result carries one child event to the parent. The child blocks on ack
// until the parent's consumer has handled the event.
type result struct {
	event *agent.Event
	err   error
	ack   chan struct{}
}

func runParallel(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		group, groupCtx := errgroup.WithContext(ctx)
		results := make(chan result)
		stop := make(chan struct{})

		cur := ctx.Agent()
		for _, sub := range cur.SubAgents() {
			subCtx := ctx.
				WithContext(groupCtx).
				WithBranch(agent.JoinBranch(agent.JoinBranch(ctx.Branch(), cur.Name()), sub.Name()))

			group.Go(func() error {
				if err := runChild(subCtx, sub, results, stop); err != nil {
					return fmt.Errorf("sub-agent %q: %w", sub.Name(), err)
				}
				return nil
			})
		}

		waitErr := make(chan error, 1)
		go func() {
			waitErr <- group.Wait()
			close(results)
		}()

		stopped := false
		for res := range results {
			if stopped {
				close(res.ack)
				continue
			}
			if res.err != nil {
				close(res.ack)
				continue
			}
			if !yield(res.event, nil) {
				stopped = true
				close(stop)
			}
			close(res.ack)
		}

		if err := <-waitErr; err != nil && !stopped {
			yield(nil, err)
		}
	}
}

func runChild(ctx agent.InvocationContext, child agent.Agent, results chan<- result, stop <-chan struct{}) error {
	for event, err := range child.Run(ctx) {
		res := result{event: event, err: err, ack: make(chan struct{})}
		select {
		case results <- res:
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		<-res.ack
		if err != nil {
			return err
		}
	}
	return nil
}
