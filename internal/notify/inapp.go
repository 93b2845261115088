package notify

import "context"

// InAppPublisher is the collaborator boundary for the in_app channel: the
// scheduling core has no in-app delivery mechanism of its own (that lives in
// the surrounding platform, out of scope here), so this is a thin port any
// caller can satisfy — e.g. writing to a notification inbox table or
// publishing on a websocket hub.
type InAppPublisher interface {
	Publish(ctx context.Context, userID int64, subject, body string) error
}

// InAppSender adapts an InAppPublisher to Sender.
type InAppSender struct {
	publisher InAppPublisher
}

// NewInAppSender wraps publisher. A nil publisher yields a sender that
// always reports unavailable.
func NewInAppSender(publisher InAppPublisher) *InAppSender {
	return &InAppSender{publisher: publisher}
}

func (s *InAppSender) Available() bool {
	return s.publisher != nil
}

func (s *InAppSender) Send(ctx context.Context, msg Message) error {
	return s.publisher.Publish(ctx, msg.UserID, msg.Subject, msg.Body)
}
