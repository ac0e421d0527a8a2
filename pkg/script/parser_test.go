package script_test

import (
	"testing"

	"github.com/MrWong99/newscast/pkg/script"
	"github.com/MrWong99/newscast/pkg/types"
)

func TestParse(t *testing.T) {
	t.Parallel()

	type unit struct {
		speaker types.Speaker
		text    string
	}
	tests := []struct {
		name       string
		transcript string
		want       []unit
	}{
		{
			name:       "labelled full-width colons",
			transcript: "主播A：你好\n主播B：大家好",
			want:       []unit{{types.SpeakerA, "你好"}, {types.SpeakerB, "大家好"}},
		},
		{
			name:       "empty transcript",
			transcript: "",
			want:       nil,
		},
		{
			name:       "no colon lines",
			transcript: "just a heading\nanother line",
			want:       nil,
		},
		{
			name:       "blank lines and half-width colon",
			transcript: "\n  \nHost A: Good morning\r\n\nHost B: Morning!\n",
			want:       []unit{{types.SpeakerA, "Good morning"}, {types.SpeakerB, "Morning!"}},
		},
		{
			name:       "unlabelled alternates starting at A",
			transcript: "小明：第一句\n小红：第二句\n小明：第三句",
			want:       []unit{{types.SpeakerA, "第一句"}, {types.SpeakerB, "第二句"}, {types.SpeakerA, "第三句"}},
		},
		{
			name:       "unlabelled alternates from last labelled",
			transcript: "主播B：开场\n嘉宾：回应\n嘉宾：继续",
			want:       []unit{{types.SpeakerB, "开场"}, {types.SpeakerA, "回应"}, {types.SpeakerB, "继续"}},
		},
		{
			name:       "first colon splits",
			transcript: "主播A：时间是 10:30：开始",
			want:       []unit{{types.SpeakerA, "时间是 10:30：开始"}},
		},
		{
			name:       "mixed colons pick earliest",
			transcript: "B: note：inside",
			want:       []unit{{types.SpeakerB, "note：inside"}},
		},
		{
			name:       "empty text is kept",
			transcript: "主播A：\n主播B：好",
			want:       []unit{{types.SpeakerA, ""}, {types.SpeakerB, "好"}},
		},
		{
			name:       "skipped lines do not consume indices",
			transcript: "# 标题\n主播A：一\n旁白\n主播B：二",
			want:       []unit{{types.SpeakerA, "一"}, {types.SpeakerB, "二"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := script.Parse(tt.transcript)
			if got == nil {
				t.Fatal("Parse returned nil, want non-nil slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d (%+v)", len(got), len(tt.want), got)
			}
			for i, u := range got {
				if u.Index != i {
					t.Errorf("[%d] Index = %d", i, u.Index)
				}
				if u.Speaker != tt.want[i].speaker {
					t.Errorf("[%d] Speaker = %s, want %s", i, u.Speaker, tt.want[i].speaker)
				}
				if u.Text != tt.want[i].text {
					t.Errorf("[%d] Text = %q, want %q", i, u.Text, tt.want[i].text)
				}
			}
		})
	}
}

func TestRender_RoundTrip(t *testing.T) {
	t.Parallel()

	units := []types.DialogueUnit{
		{Index: 0, Speaker: types.SpeakerA, Text: "欢迎收听"},
		{Index: 1, Speaker: types.SpeakerB, Text: "今天聊聊科技"},
		{Index: 2, Speaker: types.SpeakerB, Text: "第一条新闻"},
	}
	text := script.Render(units)
	want := "主播A：欢迎收听\n主播B：今天聊聊科技\n主播B：第一条新闻"
	if text != want {
		t.Errorf("Render = %q, want %q", text, want)
	}

	back := script.Parse(text)
	if len(back) != len(units) {
		t.Fatalf("Parse(Render) len = %d, want %d", len(back), len(units))
	}
	for i := range units {
		if back[i] != units[i] {
			t.Errorf("[%d] = %+v, want %+v", i, back[i], units[i])
		}
	}
}
