package opencv

import (
	"fmt"
	"image"

	"facegate/internal/core/vision"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Camera is a webcam-backed vision.FrameSource.
type Camera struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenCamera opens the capture device by index.
func OpenCamera(deviceID int) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", vision.ErrCameraUnavailable, deviceID, err)
	}
	log.Infof("Camera %d opened", deviceID)
	return &Camera{capture: capture, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame. A closed or stalled device surfaces as
// vision.ErrCameraUnavailable.
func (c *Camera) Read() (image.Image, error) {
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, vision.ErrCameraUnavailable
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert camera frame: %w", err)
	}
	return img, nil
}

// Close releases the device and the frame buffer.
func (c *Camera) Close() error {
	c.mat.Close()
	return c.capture.Close()
}
