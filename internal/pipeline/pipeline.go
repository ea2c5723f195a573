/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pipeline is the producer/consumer rework spec.md §9 calls for:
// exactly one background goroutine drives a content.Parser and feeds
// domain.Page values over a bounded channel to a second, consuming goroutine,
// coordinated by golang.org/x/sync/errgroup and a context.Context standing
// in for spec.md §4.5/§5's AbortCallback. This realises the single
// background worker scheduling model of spec.md §5 as idiomatic Go instead
// of a hand-rolled cooperative scheduler.
package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"papyrix/internal/content"
	"papyrix/internal/domain"
	"papyrix/internal/papyrixerr"
)

// defaultBufferSize bounds the in-flight page channel; a small buffer keeps
// memory discipline close to the firmware's "no ephemeral allocations in
// hot paths" rule (spec.md §5) while still letting the producer run a page
// ahead of the consumer.
const defaultBufferSize = 2

// Result is what Run returns once the parser is drained or aborted.
type Result struct {
	PagesProduced int
	Outcome       content.ParseOutcome
}

// Run drives parser in a single background goroutine, emitting each
// completed page to onPage in strict page order. onPage runs on a second
// goroutine of the same errgroup, not on the calling goroutine; Run blocks
// until both goroutines have finished. Cancelling ctx causes the
// background goroutine to return within one page boundary and Run returns
// ctx.Err() wrapped as KindCancelled, with no partial cache state left
// behind beyond what parser.ParsePages itself guarantees.
func Run(ctx context.Context, parser content.Parser, maxPages int, onPage func(domain.Page) error) (Result, error) {
	pages := make(chan domain.Page, defaultBufferSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pages)
		_, err := parser.ParsePages(func(pg domain.Page) bool {
			select {
			case pages <- pg:
				return true
			case <-gctx.Done():
				return false
			}
		}, maxPages, func() bool {
			select {
			case <-gctx.Done():
				return true
			default:
				return false
			}
		})
		return err
	})

	var (
		produced int
		consumeErr error
	)
	g.Go(func() error {
		for {
			select {
			case pg, ok := <-pages:
				if !ok {
					return nil
				}
				if err := onPage(pg); err != nil {
					consumeErr = err
					return err
				}
				produced++
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	err := g.Wait()
	if err != nil {
		if consumeErr != nil {
			return Result{PagesProduced: produced}, consumeErr
		}
		if ctx.Err() != nil {
			return Result{PagesProduced: produced}, papyrixerr.Wrap(papyrixerr.KindCancelled, ctx.Err(), "pipeline: cancelled after %d pages", produced)
		}
		return Result{PagesProduced: produced}, err
	}

	outcome := content.OutcomeOK
	if produced >= maxPages && parser.HasMoreContent() {
		outcome = content.OutcomePartial
	}
	return Result{PagesProduced: produced, Outcome: outcome}, nil
}
