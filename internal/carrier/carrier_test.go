package carrier_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/kaiwa-ai/uketsuke/internal/carrier"
)

func TestParse_Start(t *testing.T) {
	raw := []byte(`{"event":"start","start":{"streamSid":"MZ123","callSid":"CA456","accountSid":"AC789"}}`)
	msg, err := carrier.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Event != carrier.EventStart {
		t.Errorf("event = %q", msg.Event)
	}
	if msg.Start == nil || msg.Start.CallSid != "CA456" || msg.Start.StreamSid != "MZ123" {
		t.Errorf("start = %+v", msg.Start)
	}
}

func TestParse_MediaPayload(t *testing.T) {
	audio := []byte{0xFF, 0x7F, 0x00, 0x80}
	raw := []byte(`{"event":"media","media":{"payload":"` + base64.StdEncoding.EncodeToString(audio) + `"}}`)

	msg, err := carrier.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got, err := msg.AudioPayload()
	if err != nil {
		t.Fatalf("AudioPayload: %v", err)
	}
	if string(got) != string(audio) {
		t.Errorf("payload = %v, want %v", got, audio)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"media":{}}`} {
		if _, err := carrier.Parse([]byte(raw)); err == nil {
			t.Errorf("Parse(%q) accepted", raw)
		}
	}
}

func TestParse_MarkAck(t *testing.T) {
	msg, err := carrier.Parse([]byte(`{"event":"mark","mark":{"name":"continue"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Mark == nil || msg.Mark.Name != carrier.MarkContinue {
		t.Errorf("mark = %+v", msg.Mark)
	}
}

func TestOutboundFrames(t *testing.T) {
	media, err := carrier.MediaFrame("MZ1", []byte{0x7F, 0xFF})
	if err != nil {
		t.Fatalf("MediaFrame: %v", err)
	}
	var decoded carrier.Message
	if err := json.Unmarshal(media, &decoded); err != nil {
		t.Fatalf("unmarshal media frame: %v", err)
	}
	if decoded.Event != carrier.EventMedia || decoded.StreamSid != "MZ1" {
		t.Errorf("media frame = %+v", decoded)
	}
	payload, err := decoded.AudioPayload()
	if err != nil || len(payload) != 2 {
		t.Errorf("payload round trip failed: %v %v", payload, err)
	}

	mark, err := carrier.MarkFrame("MZ1", carrier.MarkFinish)
	if err != nil {
		t.Fatalf("MarkFrame: %v", err)
	}
	if err := json.Unmarshal(mark, &decoded); err != nil {
		t.Fatalf("unmarshal mark frame: %v", err)
	}
	if decoded.Mark == nil || decoded.Mark.Name != carrier.MarkFinish {
		t.Errorf("mark frame = %+v", decoded)
	}

	clear, err := carrier.ClearFrame("MZ1")
	if err != nil {
		t.Fatalf("ClearFrame: %v", err)
	}
	if err := json.Unmarshal(clear, &decoded); err != nil {
		t.Fatalf("unmarshal clear frame: %v", err)
	}
	if decoded.Event != carrier.EventClear {
		t.Errorf("clear frame = %+v", decoded)
	}
}
