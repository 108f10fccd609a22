package user

import "testing"

func TestIdentity_CanGrade(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{role: RoleStudent, want: false},
		{role: RoleTeacher, want: true},
		{role: RoleAdmin, want: true},
		{role: "lol", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := (Identity{UserID: "u1", Role: tt.role}).CanGrade(); got != tt.want {
				t.Errorf("CanGrade() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOk bool
	}{
		{in: "student", want: RoleStudent, wantOk: true},
		{in: " Teacher ", want: RoleTeacher, wantOk: true},
		{in: "ADMIN", want: RoleAdmin, wantOk: true},
		{in: "owner", want: "OWNER", wantOk: false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("ParseRole() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOk)
			}
		})
	}
}
