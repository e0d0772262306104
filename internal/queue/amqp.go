// internal/queue/amqp.go
package queue

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// AMQPQueue publishes and consumes campaign-enqueued notifications over a
// durable RabbitMQ queue.
type AMQPQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	log       *zap.SugaredLogger
}

type dispatchJob struct {
	CampaignID string `json:"campaign_id"`
}

func NewAMQPQueue(url, queueName string, log *zap.SugaredLogger) (*AMQPQueue, error) {
	if log == nil {
		log = zap.S()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPQueue{conn: conn, channel: ch, queueName: queueName, log: log}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, campaignID string) error {
	body, err := json.Marshal(dispatchJob{CampaignID: campaignID})
	if err != nil {
		return err
	}
	return q.channel.Publish(
		"",
		q.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Consume acks every delivery regardless of handler outcome: the poll loop
// re-selects anything the handler could not finish, and the claim step
// protects against double dispatch in the meantime.
func (q *AMQPQueue) Consume(ctx context.Context, handler func(ctx context.Context, campaignID string) error) error {
	msgs, err := q.channel.Consume(
		q.queueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}

			var job dispatchJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				q.log.Warnw("invalid dispatch job", "err", err)
				d.Ack(false)
				continue
			}

			if err := handler(ctx, job.CampaignID); err != nil {
				q.log.Warnw("dispatch trigger failed, poller will retry",
					"campaign", job.CampaignID, "err", err)
			}
			d.Ack(false)
		}
	}
}

func (q *AMQPQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
