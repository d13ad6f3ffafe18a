package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sightlinelabs/vizbench/pkg/eventstream"
	"github.com/sightlinelabs/vizbench/pkg/results"
)

var _ = Describe("Event", func() {
	It("marshals RecordPersistedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.RecordPersistedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeRecordPersisted,
			EventID:       "evt_123",
			EmittedAt:     now,
			Source: eventstream.EventSource{
				RunID:     "run-42",
				ModelName: "gpt-4o",
				Provider:  "openai",
			},
			Record: results.EvaluationRecord{
				ValidationID: "VizWiz_val_00000001",
				ModelName:    "gpt-4o",
				WithContext:  true,
				Timestamp:    now,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var parsed map[string]any
		Expect(json.Unmarshal(payload, &parsed)).To(Succeed())
		for _, key := range []string{"schema_version", "event_type", "event_id", "emitted_at", "source", "record"} {
			Expect(parsed).To(HaveKey(key), key)
		}

		record := parsed["record"].(map[string]any)
		Expect(record["validation_id"]).To(Equal("VizWiz_val_00000001"))
		Expect(record["with_context"]).To(Equal(true))
	})
})
