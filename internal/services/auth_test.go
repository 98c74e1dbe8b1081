package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/babynest/backend/internal/repositories"
	"github.com/babynest/backend/internal/testutil"
	"github.com/babynest/backend/pkg/utils"
)

type authFixture struct {
	svc    *AuthService
	users  *repositories.InMemoryUserStore
	mailer *testutil.Mailer
	clock  time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		users:  repositories.NewInMemoryUserStore(),
		mailer: testutil.NewMailer(),
		clock:  time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewAuthService(f.users, NewTokenManager("test-secret", time.Hour), NewMemoryTokenRevoker(), f.mailer)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *authFixture) register(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return res
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res := f.register(t, "Mom@Example.com", "secret123")
	if res.AccessToken == "" || res.User.Email != "mom@example.com" {
		t.Fatalf("unexpected register result: %+v", res)
	}

	sess, err := f.svc.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.UserID != res.User.ID {
		t.Fatalf("session user = %q, want %q", sess.UserID, res.User.ID)
	}

	if _, err := f.svc.Login(ctx, LoginInput{Email: "MOM@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{Email: "mom@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "mom@example.com", "secret123")
	_, err := f.svc.Register(context.Background(), RegisterInput{Email: " MOM@example.com ", Password: "another1"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"bad email", RegisterInput{Email: "not-an-email", Password: "secret123"}, "email"},
		{"short password", RegisterInput{Email: "a@b.co", Password: "123"}, "password"},
		{"bad username", RegisterInput{Email: "a@b.co", Password: "secret123", Username: "_x"}, "username"},
		{"bad phone", RegisterInput{Email: "a@b.co", Password: "secret123", PhoneNumber: "555"}, "phone_number"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.in)
			var verr *utils.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Fatalf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.register(t, "mom@example.com", "secret123")
	sess, err := f.svc.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := f.svc.Logout(ctx, sess); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("err = %v, want ErrTokenRevoked", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "mom@example.com", "secret123")

	if err := f.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "mom@example.com"}); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	otp := f.mailer.OTP("mom@example.com")
	if len(otp) != 6 {
		t.Fatalf("otp = %q", otp)
	}

	if err := f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "mom@example.com", NewPassword: "newsecret"}); !errors.Is(err, ErrOTPNotVerified) {
		t.Fatalf("reset before verify err = %v", err)
	}
	if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: "000000"}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("wrong otp err = %v", err)
	}

	f.clock = f.clock.Add(OTPTTL) // exactly at expiry is still valid
	if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: otp}); err != nil {
		t.Fatalf("VerifyOTP at expiry: %v", err)
	}
	if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: otp}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("second verify err = %v, want ErrInvalidOTP", err)
	}
	if err := f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "mom@example.com", NewPassword: "newsecret"}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "mom@example.com", NewPassword: "again123"}); !errors.Is(err, ErrOTPNotVerified) {
		t.Fatalf("second reset err = %v", err)
	}

	if _, err := f.svc.Login(ctx, LoginInput{Email: "mom@example.com", Password: "newsecret"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{Email: "mom@example.com", Password: "secret123"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
}

func TestVerifyOTPAfterExpiry(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "mom@example.com", "secret123")
	if err := f.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "mom@example.com"}); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	otp := f.mailer.OTP("mom@example.com")

	f.clock = f.clock.Add(OTPTTL + time.Millisecond)
	if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: otp}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("err = %v, want ErrInvalidOTP", err)
	}
}

func TestVerifyOTPLocksAfterRepeatedMisses(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "mom@example.com", "secret123")
	if err := f.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "mom@example.com"}); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	otp := f.mailer.OTP("mom@example.com")

	for i := 0; i < MaxOTPAttempts; i++ {
		if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: "000000"}); !errors.Is(err, ErrInvalidOTP) {
			t.Fatalf("miss %d err = %v", i+1, err)
		}
	}
	if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: otp}); !errors.Is(err, ErrInvalidOTP) {
		t.Fatalf("correct code after lockout err = %v, want ErrInvalidOTP", err)
	}
	user, err := f.users.FindByEmail(ctx, "mom@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ResetOTPHash != "" || user.ResetOTPExpiry != nil {
		t.Fatalf("locked code not cleared: %+v", user)
	}

	// A new request starts a fresh allowance.
	if err := f.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "mom@example.com"}); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	for i := 0; i < MaxOTPAttempts-1; i++ {
		_ = f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: "000000"})
	}
	if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: f.mailer.OTP("mom@example.com")}); err != nil {
		t.Fatalf("last allowed guess: %v", err)
	}
}

func TestResetPasswordAfterWindowCloses(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "mom@example.com", "secret123")
	_ = f.svc.ForgotPassword(ctx, ForgotPasswordInput{Email: "mom@example.com"})
	if err := f.svc.VerifyOTP(ctx, VerifyOTPInput{Email: "mom@example.com", OTP: f.mailer.OTP("mom@example.com")}); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	f.clock = f.clock.Add(OTPTTL + time.Second)
	if err := f.svc.ResetPassword(ctx, ResetPasswordInput{Email: "mom@example.com", NewPassword: "newsecret"}); !errors.Is(err, ErrOTPNotVerified) {
		t.Fatalf("err = %v, want ErrOTPNotVerified", err)
	}
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t)
	if err := f.svc.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "ghost@example.com"}); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if f.mailer.Sent() != 0 {
		t.Fatal("mail sent for unknown address")
	}
}

func TestForgotPasswordMailFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "mom@example.com", "secret123")
	f.mailer.Err = errors.New("smtp down")
	err := f.svc.ForgotPassword(context.Background(), ForgotPasswordInput{Email: "mom@example.com"})
	if !errors.Is(err, ErrMailDelivery) {
		t.Fatalf("err = %v, want ErrMailDelivery", err)
	}
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	res := f.register(t, "mom@example.com", "secret123")
	sess, _ := f.svc.Authenticate(ctx, res.AccessToken)

	if err := f.svc.ChangePassword(ctx, sess, ChangePasswordInput{CurrentPassword: "nope", NewPassword: "newsecret"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password err = %v", err)
	}
	if err := f.svc.ChangePassword(ctx, sess, ChangePasswordInput{CurrentPassword: "secret123", NewPassword: "newsecret"}); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{Email: "mom@example.com", Password: "newsecret"}); err != nil {
		t.Fatalf("login after change: %v", err)
	}
}

func TestGoogleSignIn(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.LoginWithGoogle(ctx, &GoogleProfile{ID: "g-1", Email: "new@example.com"}); !errors.Is(err, ErrOAuthFailed) {
		t.Fatalf("unverified email err = %v", err)
	}

	first, err := f.svc.LoginWithGoogle(ctx, &GoogleProfile{ID: "g-1", Email: "New@example.com", VerifiedEmail: true, Name: "New Mom"})
	if err != nil {
		t.Fatalf("LoginWithGoogle: %v", err)
	}
	again, err := f.svc.LoginWithGoogle(ctx, &GoogleProfile{ID: "g-1", Email: "new@example.com", VerifiedEmail: true})
	if err != nil || again.User.ID != first.User.ID {
		t.Fatalf("second sign-in = %+v, %v", again, err)
	}

	sess, _ := f.svc.Authenticate(ctx, first.AccessToken)
	err = f.svc.ChangePassword(ctx, sess, ChangePasswordInput{CurrentPassword: "anything", NewPassword: "newsecret"})
	if !errors.Is(err, ErrNoPasswordSet) {
		t.Fatalf("err = %v, want ErrNoPasswordSet", err)
	}

	existing := f.register(t, "mom@example.com", "secret123")
	linked, err := f.svc.LoginWithGoogle(ctx, &GoogleProfile{ID: "g-2", Email: "mom@example.com", VerifiedEmail: true})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if linked.User.ID != existing.User.ID {
		t.Fatalf("linked to %s, want %s", linked.User.ID, existing.User.ID)
	}
	user, _ := f.users.FindByEmail(ctx, "mom@example.com")
	if user.GoogleID != "g-2" || !user.HasPassword() {
		t.Fatalf("link lost data: %+v", user)
	}
}
