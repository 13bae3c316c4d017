package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/entity"
	"github.com/VictorlBueno/fiap-hackaton-service-sub000/internal/domain/port"
	"go.uber.org/zap"
)

// SMTPNotifier mails the job owner when a job reaches a terminal state. The
// owner's address is taken from the queue message when present, otherwise
// resolved through the auth gateway; a resolution failure skips the mail
// silently, a send failure propagates.
type SMTPNotifier struct {
	host   string
	port   int
	from   string
	auth   port.AuthGateway
	logger *zap.Logger
}

func NewSMTPNotifier(host string, smtpPort int, from string, auth port.AuthGateway, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: smtpPort, from: from, auth: auth, logger: logger}
}

func (n *SMTPNotifier) NotifyTerminal(ctx context.Context, job entity.Job, knownEmail string) error {
	to := knownEmail
	if to == "" {
		resolved, err := n.auth.UserEmail(ctx, job.UserID)
		if err != nil {
			n.logger.Warn("could not resolve owner email, skipping notification",
				zap.String("job_id", job.ID),
				zap.String("user_id", job.UserID),
				zap.Error(err),
			)
			return nil
		}
		to = resolved
	}

	subject, body := n.compose(job)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, to, subject, body,
	)

	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	if err := smtp.SendMail(addr, nil, n.from, []string{to}, []byte(msg)); err != nil {
		n.logger.Error("failed to send notification email",
			zap.String("to", to),
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("notification email sent",
		zap.String("to", to),
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
	)
	return nil
}

func (n *SMTPNotifier) compose(job entity.Job) (subject, body string) {
	if job.IsCompleted() {
		subject = fmt.Sprintf("FIAP X - Video Processed [Job %s]", job.ID)
		body = fmt.Sprintf(
			"Hello,\r\n\r\n"+
				"Your video has been processed.\r\n\r\n"+
				"Job ID: %s\r\n"+
				"Video: %s\r\n"+
				"Frames extracted: %d\r\n"+
				"Archive: %s\r\n\r\n"+
				"-- FIAP X Processing Service",
			job.ID, job.VideoName, job.FrameCount, job.ArchiveName,
		)
		return subject, body
	}

	subject = fmt.Sprintf("FIAP X - Video Processing Failed [Job %s]", job.ID)
	body = fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"Your video processing job has failed.\r\n\r\n"+
			"Job ID: %s\r\n"+
			"Video: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Please try uploading the video again or contact support.\r\n\r\n"+
			"-- FIAP X Processing Service",
		job.ID, job.VideoName, job.Message,
	)
	return subject, body
}
