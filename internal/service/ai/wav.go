package ai

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Speech output format of the TTS model.
const (
	SpeechSampleRate = 24000
	speechChannels   = 1
	speechBitDepth   = 16
)

// WAV wraps raw little-endian PCM in a RIFF header so browsers can play it.
func WAV(pcm []byte) []byte {
	var buf bytes.Buffer
	byteRate := SpeechSampleRate * speechChannels * speechBitDepth / 8
	blockAlign := speechChannels * speechBitDepth / 8

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(speechChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(SpeechSampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(speechBitDepth))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// SpeechDataURL turns base64 PCM from GenerateSpeech into a playable data URL.
func SpeechDataURL(pcmBase64 string) (string, error) {
	pcm, err := base64.StdEncoding.DecodeString(pcmBase64)
	if err != nil {
		return "", fmt.Errorf("decode speech: %w", err)
	}
	return "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(WAV(pcm)), nil
}
