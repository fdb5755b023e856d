package ipc

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  Kind
	}{
		{
			name: "permission request",
			frame: Frame{
				ToolName:  "Bash",
				ToolInput: map[string]any{"command": "ls"},
			},
			want: KindPermission,
		},
		{
			name: "permission request with hook event name",
			frame: Frame{
				ToolName:      "Write",
				ToolInput:     map[string]any{"file_path": "/tmp/x"},
				HookEventName: "PreToolUse",
			},
			want: KindPermission,
		},
		{
			name: "notification by event name",
			frame: Frame{
				HookEventName: "Notification",
				Message:       "Claude needs your attention",
			},
			want: KindNotification,
		},
		{
			name: "notification by type",
			frame: Frame{
				NotificationType: "idle_prompt",
				Message:          "Waiting for input",
			},
			want: KindNotification,
		},
		{
			name: "notification marker wins over tool fields",
			frame: Frame{
				ToolName:         "Bash",
				ToolInput:        map[string]any{"command": "ls"},
				NotificationType: "elicitation_dialog",
			},
			want: KindNotification,
		},
		{
			name:  "empty frame",
			frame: Frame{},
			want:  KindMalformed,
		},
		{
			name:  "tool name without input",
			frame: Frame{ToolName: "Bash"},
			want:  KindMalformed,
		},
		{
			name:  "input without tool name",
			frame: Frame{ToolInput: map[string]any{"command": "ls"}},
			want:  KindMalformed,
		},
		{
			name: "empty tool input object still counts",
			frame: Frame{
				ToolName:  "ListMcpResources",
				ToolInput: map[string]any{},
			},
			want: KindPermission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.frame.Classify(); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeFrameIgnoresUnknownFields(t *testing.T) {
	data := []byte(`{"tool_name":"Bash","tool_input":{"command":"ls"},"future_field":42,"session_id":"abc"}`)

	frame, err := DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if frame.ToolName != "Bash" {
		t.Errorf("Expected ToolName=Bash, got %s", frame.ToolName)
	}
	if frame.SessionID != "abc" {
		t.Errorf("Expected SessionID=abc, got %s", frame.SessionID)
	}
	if frame.Classify() != KindPermission {
		t.Errorf("Expected permission classification, got %v", frame.Classify())
	}
}

func TestDecodeFrameInvalid(t *testing.T) {
	if _, err := DecodeFrame([]byte("not json at all\n")); err == nil {
		t.Error("Expected error for invalid JSON, got nil")
	}
}

func TestResponseWireFormat(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{
			name: "approve",
			resp: NewApproveResponse("Approved via chat"),
			want: `{"action":"approve","reason":"Approved via chat"}`,
		},
		{
			name: "deny",
			resp: NewDenyResponse("Denied via chat"),
			want: `{"action":"deny","reason":"Denied via chat"}`,
		},
		{
			name: "passthrough",
			resp: NewPassthroughResponse("user active locally"),
			want: `{"action":"passthrough","reason":"user active locally"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.resp.Encode()
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, string(data))
			}

			back, err := DecodeResponse(data)
			if err != nil {
				t.Fatalf("DecodeResponse failed: %v", err)
			}
			if back.Action != tt.resp.Action || back.Reason != tt.resp.Reason {
				t.Errorf("Round trip mismatch: got %+v, want %+v", back, tt.resp)
			}
		})
	}
}
