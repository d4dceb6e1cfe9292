package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/relabs-tech/manipulator/internal/msgs"
)

var (
	// ErrTimeout means no reply arrived before the query timeout.
	ErrTimeout = errors.New("pose query timed out")
	// ErrRemote means the pose service answered with an error.
	ErrRemote = errors.New("pose service error")
)

// PoseClient queries the pose service with request/response over MQTT.
// Replies come back on a per-client topic and are matched by request ID.
type PoseClient struct {
	bus     *Client
	topic   string
	replyTo string
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan msgs.GetKinematicsPoseResponse

	unsubscribe func()
}

// NewPoseClient subscribes to the reply topic for clientID.
func NewPoseClient(ctx context.Context, c *Client, topic, clientID string, timeout time.Duration) (*PoseClient, error) {
	p := &PoseClient{
		bus:     c,
		topic:   topic,
		replyTo: topic + "/reply/" + clientID,
		timeout: timeout,
		pending: make(map[string]chan msgs.GetKinematicsPoseResponse),
	}
	unsubscribe, err := c.Subscribe(ctx, p.replyTo, p.handleReply)
	if err != nil {
		return nil, err
	}
	p.unsubscribe = unsubscribe
	return p, nil
}

// QueryPose returns the current wire-level pose of group.
func (p *PoseClient) QueryPose(ctx context.Context, group string) (msgs.GeoPose, error) {
	id := uuid.NewString()
	ch := make(chan msgs.GetKinematicsPoseResponse, 1)

	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := msgs.GetKinematicsPoseRequest{ID: id, GroupName: group, ReplyTo: p.replyTo}
	if err := p.bus.Publish(ctx, p.topic, req); err != nil {
		return msgs.GeoPose{}, p.contextError(ctx, err, group)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return msgs.GeoPose{}, errors.Wrapf(ErrRemote, "group %s: %s", group, resp.Error)
		}
		return resp.GroupPose, nil
	case <-ctx.Done():
		return msgs.GeoPose{}, p.contextError(ctx, ctx.Err(), group)
	}
}

func (p *PoseClient) contextError(ctx context.Context, err error, group string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(ErrTimeout, "group %s after %v", group, p.timeout)
	}
	return err
}

func (p *PoseClient) handleReply(payload []byte) {
	var resp msgs.GetKinematicsPoseResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		p.bus.logger.Warnf("bus: pose reply unmarshal error: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.pending[resp.ID]
	p.mu.Unlock()
	if !ok {
		p.bus.logger.Debugf("bus: dropping pose reply for unknown request %s", resp.ID)
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

// Close stops listening for replies.
func (p *PoseClient) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

// PoseHandler computes the current pose of a group.
type PoseHandler func(ctx context.Context, group string) (msgs.GeoPose, error)

// ServePose answers pose requests on topic until ctx is done.
func ServePose(ctx context.Context, c *Client, topic string, handle PoseHandler) error {
	unsubscribe, err := c.Subscribe(ctx, topic, func(payload []byte) {
		var req msgs.GetKinematicsPoseRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			c.logger.Warnf("bus: pose request unmarshal error: %v", err)
			return
		}
		if req.ReplyTo == "" {
			c.logger.Warnf("bus: pose request %s has no reply topic", req.ID)
			return
		}

		resp := msgs.GetKinematicsPoseResponse{ID: req.ID}
		pose, err := handle(ctx, req.GroupName)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.GroupPose = pose
		}
		if err := c.Publish(ctx, req.ReplyTo, resp); err != nil {
			c.logger.Warnf("bus: pose reply publish error: %v", err)
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	c.logger.Infof("bus: serving pose requests on %s", topic)
	<-ctx.Done()
	return ctx.Err()
}
