package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSESMailerSend(t *testing.T) {
	api := &fakeSES{}
	m := NewSESMailer(api, "noreply@example.com")

	if err := m.Send(context.Background(), []string{"a@x.com", "b@x.com"}, "No room", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(api.inputs) != 1 {
		t.Fatalf("calls = %d, want 1", len(api.inputs))
	}
	in := api.inputs[0]
	if aws.ToString(in.FromEmailAddress) != "noreply@example.com" {
		t.Errorf("from = %q", aws.ToString(in.FromEmailAddress))
	}
	if got := in.Destination.ToAddresses; len(got) != 2 || got[1] != "b@x.com" {
		t.Errorf("to = %v", got)
	}
	if got := aws.ToString(in.Content.Simple.Subject.Data); got != "No room" {
		t.Errorf("subject = %q", got)
	}
}

func TestSESMailerNoRecipients(t *testing.T) {
	api := &fakeSES{}
	if err := NewSESMailer(api, "s@x.com").Send(context.Background(), nil, "s", "b"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(api.inputs) != 0 {
		t.Error("no call expected without recipients")
	}
}

func TestSESMailerErrors(t *testing.T) {
	if err := NewSESMailer(&fakeSES{}, "").Send(context.Background(), []string{"a@x.com"}, "s", "b"); !errors.Is(err, errNoSender) {
		t.Errorf("err = %v, want errNoSender", err)
	}

	boom := errors.New("throttled")
	err := NewSESMailer(&fakeSES{err: boom}, "s@x.com").Send(context.Background(), []string{"a@x.com"}, "s", "b")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}
