package vibe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func solidFrame(h, w int, b, g, r uint8) gocv.Mat {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	data, _ := m.DataPtrUint8()
	for i := 0; i < h*w; i++ {
		data[i*3] = b
		data[i*3+1] = g
		data[i*3+2] = r
	}
	return m
}

func TestSegment_MaskIsBinary(t *testing.T) {
	m := New(Params{Height: 8, Width: 8, Seed: 1})
	frame := solidFrame(8, 8, 10, 20, 30)
	defer frame.Close()

	fg := m.Segment(frame)
	defer fg.Close()

	data, err := fg.DataPtrUint8()
	require.NoError(t, err)
	for _, v := range data {
		assert.True(t, v == BackgroundLabel || v == ForegroundLabel)
	}
}

func TestSegment_SeedFrameIsAllBackground(t *testing.T) {
	m := New(Params{Height: 16, Width: 16, Seed: 42})
	frame := solidFrame(16, 16, 100, 100, 100)
	defer frame.Close()

	fg := m.Segment(frame)
	defer fg.Close()

	data, err := fg.DataPtrUint8()
	require.NoError(t, err)
	for _, v := range data {
		assert.Equal(t, BackgroundLabel, v)
	}
}

func TestSegment_ConstantSceneStaysBackground(t *testing.T) {
	m := New(Params{Height: 16, Width: 16, Seed: 7})
	frame := solidFrame(16, 16, 50, 60, 70)
	defer frame.Close()

	for i := 0; i < 5; i++ {
		fg := m.Segment(frame)
		data, err := fg.DataPtrUint8()
		require.NoError(t, err)
		for _, v := range data {
			assert.Equal(t, BackgroundLabel, v)
		}
		fg.Close()
	}
}

func TestClear_ReseedsOnNextSegment(t *testing.T) {
	m := New(Params{Height: 8, Width: 8, Seed: 3})
	frame := solidFrame(8, 8, 1, 2, 3)
	defer frame.Close()

	fg1 := m.Segment(frame)
	fg1.Close()

	m.Clear()

	other := solidFrame(8, 8, 200, 201, 202)
	defer other.Close()
	fg2 := m.Segment(other)
	defer fg2.Close()

	data, err := fg2.DataPtrUint8()
	require.NoError(t, err)
	for _, v := range data {
		assert.Equal(t, BackgroundLabel, v)
	}
}

func TestSegment_ForegroundBlobDetected(t *testing.T) {
	m := New(Params{Height: 32, Width: 32, Seed: 9})
	bg := solidFrame(32, 32, 10, 10, 10)
	defer bg.Close()
	m.Segment(bg).Close()

	frame := solidFrame(32, 32, 10, 10, 10)
	defer frame.Close()
	data, _ := frame.DataPtrUint8()
	for y := 10; y < 20; y++ {
		for x := 10; x < 20; x++ {
			i := y*32 + x
			data[i*3] = 250
			data[i*3+1] = 250
			data[i*3+2] = 250
		}
	}

	fg := m.Segment(frame)
	defer fg.Close()
	fgData, _ := fg.DataPtrUint8()
	assert.Equal(t, ForegroundLabel, fgData[15*32+15])
	assert.Equal(t, BackgroundLabel, fgData[0])
}

func TestUpdate_RefreshesBackgroundSamples(t *testing.T) {
	m := New(Params{Height: 20, Width: 20, Seed: 5})
	frame := solidFrame(20, 20, 40, 40, 40)
	defer frame.Close()
	m.Segment(frame).Close()

	shifted := solidFrame(20, 20, 70, 70, 70)
	defer shifted.Close()

	mask := gocv.NewMatWithSize(20, 20, gocv.MatTypeCV8U)
	defer mask.Close()

	assert.NotPanics(t, func() {
		for i := 0; i < 40; i++ {
			m.Update(shifted, mask)
		}
	})
}

func TestSegment_PanicsOnDimensionMismatch(t *testing.T) {
	m := New(Params{Height: 8, Width: 8})
	frame := solidFrame(4, 4, 1, 1, 1)
	defer frame.Close()

	assert.Panics(t, func() {
		m.Segment(frame)
	})
}
