package feishu

import "testing"

func TestParseTextContent(t *testing.T) {
	mentions := map[string]string{"@_user_1": "Jeeves"}
	got := parseTextContent(`{"text":"@_user_1 what time is it?"}`, mentions)
	if got != "@Jeeves what time is it?" {
		t.Errorf("Expected mention replaced, got %q", got)
	}

	if got := parseTextContent(`not json`, nil); got != "" {
		t.Errorf("Expected empty text for invalid content, got %q", got)
	}
}

func TestParsePostContent(t *testing.T) {
	content := `{
		"title": "Notes",
		"content": [
			[{"tag":"at","user_id":"@_user_1"},{"tag":"text","text":" have a look"}],
			[{"tag":"a","text":"essay","href":"https://example.com"}],
			[{"tag":"img","image_key":"img_1"}]
		]
	}`
	got := parsePostContent(content, map[string]string{"@_user_1": "Bertie"})
	want := "Notes\n@Bertie have a look\nessay https://example.com"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestParseFileKey(t *testing.T) {
	if got := parseFileKey(`{"file_key":"file_v2_abc","duration":2000}`); got != "file_v2_abc" {
		t.Errorf("Expected file key, got %q", got)
	}
	if got := parseFileKey(`{}`); got != "" {
		t.Errorf("Expected empty key, got %q", got)
	}
}
