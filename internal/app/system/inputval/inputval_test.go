package inputval

import (
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		check func(string) bool
		in    string
		want  bool
	}{
		{"email bare", IsValidEmail, "cook@example.com", true},
		{"email plus tag", IsValidEmail, "cook+pho@kitchen.example.co.uk", true},
		{"email blank", IsValidEmail, "  ", false},
		{"email no domain", IsValidEmail, "cook@", false},
		{"email display name", IsValidEmail, "Cook <cook@example.com>", false},
		{"email double at", IsValidEmail, "cook@@example.com", false},

		{"http", IsValidHTTPURL, "http://localhost:8080/img.png", true},
		{"https", IsValidHTTPURL, "https://cdn.example.com/pho.jpg?w=640", true},
		{"url no scheme", IsValidHTTPURL, "cdn.example.com/pho.jpg", false},
		{"url ftp", IsValidHTTPURL, "ftp://example.com/pho.jpg", false},
		{"url javascript", IsValidHTTPURL, "javascript:alert(1)", false},

		{"youtube watch", IsValidYouTubeURL, "https://www.youtube.com/watch?v=abc123", true},
		{"youtube short", IsValidYouTubeURL, "https://youtu.be/abc123", true},
		{"youtube no scheme", IsValidYouTubeURL, "youtube.com/watch?v=abc123", true},
		{"youtube bare host", IsValidYouTubeURL, "https://youtube.com/", false},
		{"youtube lookalike", IsValidYouTubeURL, "https://notyoutube.com/watch?v=1", false},
		{"vimeo", IsValidYouTubeURL, "https://vimeo.com/123", false},

		{"objectid", IsValidObjectID, "507f1f77bcf86cd799439011", true},
		{"objectid short", IsValidObjectID, "507f1f77bcf86cd79943901", false},
		{"objectid non-hex", IsValidObjectID, "507f1f77bcf86cd79943901g", false},
		{"objectid blank", IsValidObjectID, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.in); got != tt.want {
				t.Errorf("check(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

type recipeInput struct {
	Title      string `json:"title" validate:"required,max=20" label:"Title"`
	Category   string `json:"category" validate:"required,category" label:"Category"`
	ImageURL   string `json:"image_url" validate:"httpurl" label:"Image URL"`
	YoutubeURL string `json:"youtube_url" validate:"youtubeurl" label:"YouTube URL"`
}

func TestValidate_RecipeInput(t *testing.T) {
	valid := recipeInput{Title: "Phở Bò", Category: "Dinner"}

	tests := []struct {
		name      string
		mutate    func(*recipeInput)
		wantField string
		wantMsg   string
	}{
		{"valid", func(*recipeInput) {}, "", ""},
		{"optional urls filled", func(in *recipeInput) {
			in.ImageURL = "https://cdn.example.com/pho.jpg"
			in.YoutubeURL = "https://youtu.be/abc123"
		}, "", ""},
		{"missing title", func(in *recipeInput) { in.Title = "" }, "title", "Title is required."},
		{"long title", func(in *recipeInput) { in.Title = strings.Repeat("x", 21) }, "title", ""},
		{"unknown category", func(in *recipeInput) { in.Category = "Brunch" }, "category",
			"Category must be one of: Breakfast, Lunch, Dinner, Dessert."},
		{"ftp image", func(in *recipeInput) { in.ImageURL = "ftp://example.com/a.jpg" }, "image_url",
			"Image URL must be a valid URL starting with http:// or https://."},
		{"vimeo video", func(in *recipeInput) { in.YoutubeURL = "https://vimeo.com/1" }, "youtube_url",
			"YouTube URL must be a YouTube link."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			res := Validate(in)

			if tt.wantField == "" {
				if res.HasErrors() {
					t.Fatalf("unexpected errors: %v", res.Fields())
				}
				return
			}
			got, ok := res.Fields()[tt.wantField]
			if !ok {
				t.Fatalf("no error for %s: %v", tt.wantField, res.Fields())
			}
			if tt.wantMsg != "" && got != tt.wantMsg {
				t.Errorf("Fields()[%s] = %q, want %q", tt.wantField, got, tt.wantMsg)
			}
		})
	}
}

func TestValidate_Pointer(t *testing.T) {
	in := &recipeInput{Title: "", Category: "Lunch"}
	if got := Validate(in).Fields()["title"]; got != "Title is required." {
		t.Errorf("title message = %q", got)
	}
}

func TestValidate_LabelFallsBackToFieldName(t *testing.T) {
	type input struct {
		Username string `validate:"required"`
	}
	res := Validate(input{})
	if !res.HasErrors() {
		t.Fatal("empty username should fail")
	}
	if res.Errors[0].Message != "Username is required." {
		t.Errorf("message = %q", res.Errors[0].Message)
	}
}

func TestValidate_OneOf(t *testing.T) {
	type input struct {
		Role string `json:"role" validate:"oneof=admin member" label:"Role"`
	}
	if res := Validate(input{Role: "member"}); res.HasErrors() {
		t.Errorf("member rejected: %v", res.Fields())
	}
	if got := Validate(input{Role: "owner"}).Fields()["role"]; !strings.HasPrefix(got, "Role must be one of") {
		t.Errorf("role message = %q", got)
	}
}

func TestValidate_NonStruct(t *testing.T) {
	if res := Validate("pho"); res == nil {
		t.Error("Validate() returned nil for a non-struct")
	}
}

func TestResult_Fields(t *testing.T) {
	r := &Result{Errors: []FieldError{
		{Field: "title", Message: "Title is required."},
		{Field: "category", Message: "Category is required."},
		{Field: "title", Message: "dropped"},
	}}

	got := r.Fields()
	if len(got) != 2 || got["title"] != "Title is required." {
		t.Errorf("Fields() = %v", got)
	}
	if len((&Result{}).Fields()) != 0 {
		t.Error("empty result produced fields")
	}
}
