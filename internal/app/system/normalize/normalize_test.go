package normalize

import (
	"testing"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
)

func TestNormalizers(t *testing.T) {
	tests := []struct {
		fn   string
		f    func(string) string
		in   string
		want string
	}{
		{"Email", Email, "  Mai.Nguyen@Example.COM\n", "mai.nguyen@example.com"},
		{"Email", Email, "\t ", ""},

		{"Name", Name, "  Mai   Nguyen ", "Mai Nguyen"},
		{"Name", Name, "Phở\tBò\nĐặc", "Phở Bò Đặc"},
		{"Name", Name, "MAI", "MAI"},
		{"Name", Name, "   ", ""},

		{"Role", Role, " Admin ", models.RoleAdmin},
		{"Role", Role, "MEMBER", models.RoleMember},
		{"Status", Status, " Active", "active"},

		{"Category", Category, "dinner", models.CategoryDinner},
		{"Category", Category, " DESSERT ", models.CategoryDessert},
		{"Category", Category, "Brunch ", "Brunch"},
		{"Category", Category, "", ""},

		{"Sort", Sort, models.SortAlphabetAsc, models.SortAlphabetAsc},
		{"Sort", Sort, " " + models.SortAlphabetDesc, models.SortAlphabetDesc},
		{"Sort", Sort, models.SortDateAsc, models.SortDateAsc},
		{"Sort", Sort, "", models.SortDateDesc},
		{"Sort", Sort, "popular", models.SortDateDesc},

		{"QueryParam", QueryParam, "  pho  ", "pho"},
	}

	for _, tt := range tests {
		t.Run(tt.fn+"/"+tt.in, func(t *testing.T) {
			if got := tt.f(tt.in); got != tt.want {
				t.Errorf("%s(%q) = %q, want %q", tt.fn, tt.in, got, tt.want)
			}
		})
	}
}
