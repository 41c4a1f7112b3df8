package orchestration

import (
	"bytes"
	"testing"
	"time"
)

func collectAudio(t *testing.T, buffer *audioBuffer) []audioOrMark {
	t.Helper()

	done := make(chan []audioOrMark, 1)
	go func() {
		collected := []audioOrMark{}
		for item := range buffer.Audio {
			collected = append(collected, item)
		}
		done <- collected
	}()

	select {
	case collected := <-done:
		return collected
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for audio iterator to finish")
		return nil
	}
}

func TestAudioBufferYieldsChunksInOrder(t *testing.T) {
	buffer := newAudioBuffer()
	chunks := [][]byte{{0x01}, {0x02}, {0x03}}
	for _, chunk := range chunks {
		buffer.AddAudio(chunk)
	}
	buffer.AllAudioLoaded()

	collected := collectAudio(t, buffer)
	if len(collected) != len(chunks) {
		t.Fatalf("expected %d items, got %d", len(chunks), len(collected))
	}
	for i, item := range collected {
		if item.Type != "audio" {
			t.Fatalf("expected item %d to be audio, got %q", i, item.Type)
		}
		if !bytes.Equal(item.Audio, chunks[i]) {
			t.Fatalf("expected chunk %d to be %v, got %v", i, chunks[i], item.Audio)
		}
	}
}

func TestAudioBufferMarkYieldsAfterPrecedingAudio(t *testing.T) {
	buffer := newAudioBuffer()
	buffer.AddAudio([]byte{0x01})
	buffer.Mark("first sentence.")
	buffer.AddAudio([]byte{0x02})
	buffer.Mark("second sentence.")
	buffer.AllAudioLoaded()

	collected := collectAudio(t, buffer)
	expected := []string{"audio", "mark", "audio", "mark"}
	if len(collected) != len(expected) {
		t.Fatalf("expected %d items, got %d", len(expected), len(collected))
	}
	for i, itemType := range expected {
		if collected[i].Type != itemType {
			t.Fatalf("expected item %d to be %q, got %q", i, itemType, collected[i].Type)
		}
	}
}

func TestAudioBufferStopEndsIterator(t *testing.T) {
	buffer := newAudioBuffer()
	buffer.AddAudio([]byte{0x01})

	done := make(chan struct{})
	go func() {
		for range buffer.Audio {
		}
		close(done)
	}()

	buffer.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stopped iterator to end")
	}
}

func TestAudioBufferBlocksUntilAllAudioLoaded(t *testing.T) {
	buffer := newAudioBuffer()
	buffer.AddAudio([]byte{0x01})

	done := make(chan int, 1)
	go func() {
		count := 0
		for range buffer.Audio {
			count++
		}
		done <- count
	}()

	select {
	case <-done:
		t.Fatalf("expected iterator to block while audio is still loading")
	case <-time.After(50 * time.Millisecond):
	}

	buffer.AddAudio([]byte{0x02})
	buffer.AllAudioLoaded()

	select {
	case count := <-done:
		if count != 2 {
			t.Fatalf("expected 2 chunks, got %d", count)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for iterator to finish")
	}
}

func TestAudioBufferSpokenTranscriptTracksConfirmedMarks(t *testing.T) {
	buffer := newAudioBuffer()
	buffer.AddAudio([]byte{0x01})
	buffer.Mark("Hello there. ")
	buffer.AddAudio([]byte{0x02})
	buffer.Mark("How are you?")
	buffer.AllAudioLoaded()

	markIDs := []string{}
	for item := range buffer.Audio {
		if item.Type == "mark" {
			markIDs = append(markIDs, item.Mark)
		}
	}
	if len(markIDs) != 2 {
		t.Fatalf("expected 2 marks, got %d", len(markIDs))
	}

	if got := buffer.SpokenTranscript(); got != "" {
		t.Fatalf("expected empty transcript before confirmations, got %q", got)
	}

	buffer.ConfirmMark(markIDs[0])
	if got := buffer.SpokenTranscript(); got != "Hello there. " {
		t.Fatalf("expected transcript of the first confirmed mark, got %q", got)
	}

	buffer.ConfirmMark(markIDs[1])
	if got := buffer.SpokenTranscript(); got != "Hello there. How are you?" {
		t.Fatalf("expected full transcript, got %q", got)
	}
}

func TestAudioBufferMarkAfterConsumptionStillBroadcasts(t *testing.T) {
	buffer := newAudioBuffer()
	buffer.AddAudio([]byte{0x01})

	items := make(chan audioOrMark, 4)
	go func() {
		for item := range buffer.Audio {
			items <- item
		}
		close(items)
	}()

	select {
	case item := <-items:
		if item.Type != "audio" {
			t.Fatalf("expected audio first, got %q", item.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for audio chunk")
	}

	// The synthesizer can confirm a mark after its audio has already been
	// handed over.
	buffer.Mark("late mark")
	buffer.AllAudioLoaded()

	for item := range items {
		if item.Type == "mark" {
			return
		}
	}
	t.Fatalf("expected the late mark to be broadcast")
}
