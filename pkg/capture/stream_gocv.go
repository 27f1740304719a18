package capture

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// gocvSource adapts a gocv.VideoCapture to the frameSource interface.
// The scratch Mat is reused across reads and released on Close.
type gocvSource struct {
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// openVideoStream opens an RTSP (or any FFmpeg-supported) stream URL.
func openVideoStream(url string) (frameSource, error) {
	vc, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open stream: not opened")
	}
	return &gocvSource{cap: vc, mat: gocv.NewMat()}, nil
}

// ReadFrame pulls the next frame. Decoders deliver BGR; the frame is
// converted to RGB before crossing the package boundary.
func (s *gocvSource) ReadFrame() (image.Image, error) {
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, nil
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(s.mat, &rgb, gocv.ColorBGRToRGB)

	return rgbMatToImage(&rgb)
}

func (s *gocvSource) Close() error {
	s.mat.Close()
	return s.cap.Close()
}

// rgbMatToImage copies a 3-channel 8-bit RGB Mat into an image.RGBA.
func rgbMatToImage(m *gocv.Mat) (image.Image, error) {
	w, h := m.Cols(), m.Rows()
	data := m.ToBytes()
	if len(data) < w*h*3 {
		return nil, fmt.Errorf("short frame buffer: %d bytes for %dx%d", len(data), w, h)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := data[y*w*3:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			dst[x*4+0] = src[x*3+0]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img, nil
}
