/*
Copyright 2026 The Gantry Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pipeline

import (
	"testing"
	"time"

	gErrors "github.com/gantry-ci/gantry/pkg/gantry/errors"
	"github.com/gantry-ci/gantry/testutil"
)

func TestCreateGeneratesTokenAndSecret(t *testing.T) {
	testutil.Run(t, "blank token and secret filled in", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)

		created, err := store.Create(validPipeline())

		t.CheckNoError(err)
		t.CheckTrue(created.ID != "")
		t.CheckTrue(created.WebhookToken != "")
		t.CheckTrue(created.WebhookSecret != "")
	})
}

func TestTokenStableAcrossResave(t *testing.T) {
	testutil.Run(t, "update without token change keeps the token", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		created, err := store.Create(validPipeline())
		t.RequireNoError(err)

		loaded, err := store.Get(created.ID)
		t.RequireNoError(err)
		loaded.WebhookToken = ""
		loaded.WebhookSecret = ""
		updated, err := store.Update(loaded)

		t.CheckNoError(err)
		t.CheckDeepEqual(created.WebhookToken, updated.WebhookToken)
		t.CheckDeepEqual(created.WebhookSecret, updated.WebhookSecret)
	})
}

func TestTokenUniqueness(t *testing.T) {
	testutil.Run(t, "duplicate token rejected", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		first, err := store.Create(validPipeline())
		t.RequireNoError(err)

		second := validPipeline()
		second.WebhookToken = first.WebhookToken
		_, err = store.Create(second)

		t.CheckError(true, err)
		t.CheckDeepEqual(gErrors.Conflict, gErrors.KindOf(err))
	})
}

func TestGetByToken(t *testing.T) {
	testutil.Run(t, "token resolves, stale token does not", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		created, err := store.Create(validPipeline())
		t.RequireNoError(err)

		resolved, err := store.GetByToken(created.WebhookToken)
		t.CheckNoError(err)
		t.CheckDeepEqual(created.ID, resolved.ID)

		// Regenerating the token retires the old one atomically.
		resolved.WebhookToken = "regenerated-token"
		_, err = store.Update(resolved)
		t.RequireNoError(err)

		_, err = store.GetByToken(created.WebhookToken)
		t.CheckDeepEqual(gErrors.NotFound, gErrors.KindOf(err))
		again, err := store.GetByToken("regenerated-token")
		t.CheckNoError(err)
		t.CheckDeepEqual(created.ID, again.ID)
	})
}

func TestStoreReload(t *testing.T) {
	testutil.Run(t, "records and indexes survive a restart", func(t *testutil.T) {
		dir := t.NewTempDir().Root()
		store, err := NewStore(dir)
		t.RequireNoError(err)
		p := validPipeline()
		p.SourceID = "src-1"
		created, err := store.Create(p)
		t.RequireNoError(err)

		reloaded, err := NewStore(dir)
		t.RequireNoError(err)

		got, err := reloaded.GetByToken(created.WebhookToken)
		t.CheckNoError(err)
		t.CheckDeepEqual(created.ID, got.ID)
		t.CheckDeepEqual(1, len(reloaded.ListBySource("src-1")))
	})
}

func TestMutateKeepsStats(t *testing.T) {
	testutil.Run(t, "stats survive operator updates", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		created, err := store.Create(validPipeline())
		t.RequireNoError(err)

		now := time.Now()
		err = store.Mutate(created.ID, func(p *Pipeline) {
			p.TriggerCount++
			p.LastTriggeredAt = &now
		})
		t.RequireNoError(err)

		// An operator update must not roll the stats back.
		loaded, err := store.Get(created.ID)
		t.RequireNoError(err)
		loaded.Tag = "1.1"
		loaded.TriggerCount = 0
		_, err = store.Update(loaded)
		t.RequireNoError(err)

		final, err := store.Get(created.ID)
		t.CheckNoError(err)
		t.CheckDeepEqual(1, final.TriggerCount)
		t.CheckDeepEqual("1.1", final.Tag)
	})
}

func TestDelete(t *testing.T) {
	testutil.Run(t, "deleted pipeline is gone", func(t *testutil.T) {
		store, err := NewStore(t.NewTempDir().Root())
		t.RequireNoError(err)
		created, err := store.Create(validPipeline())
		t.RequireNoError(err)

		t.CheckNoError(store.Delete(created.ID))

		_, err = store.Get(created.ID)
		t.CheckDeepEqual(gErrors.NotFound, gErrors.KindOf(err))
		_, err = store.GetByToken(created.WebhookToken)
		t.CheckDeepEqual(gErrors.NotFound, gErrors.KindOf(err))
	})
}
