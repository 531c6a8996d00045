// compress.go — адаптивное сжатие изображений под целевой размер
// с сохранением формата.
//
// JPEG: ступенчатое снижение quality (85 → 40 шагом 5) с опциональным
// уменьшением стороны до 1600 px. PNG: лестница палитр 256/128/64 цветов
// (median-cut) при максимальном lossless-сжатии, затем до четырёх проходов
// пропорционального уменьшения ×0.9 с полом 600 px. Возвращается лучший
// достигнутый результат, даже если цель не взята: сжатие — best-effort,
// а не требование корректности.
package service

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/soniakeys/quant/median"
	xdraw "golang.org/x/image/draw"
)

// Prometheus метрики сжатия
var (
	// compressTotal — количество сжатий по формату и результату.
	compressTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psb_compress_total",
			Help: "Общее количество сжатий изображений",
		},
		[]string{"format", "result"},
	)

	// compressRatio — отношение размера результата к оригиналу.
	compressRatio = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "psb_compress_ratio",
		Help:    "Отношение размера сжатого изображения к оригиналу",
		Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
	})
)

// Параметры алгоритма сжатия.
const (
	// maxLongEdge — максимальная длинная сторона изображения
	maxLongEdge = 1600
	// jpegQualityStart — начальный уровень quality JPEG
	jpegQualityStart = 85
	// jpegQualityFloor — минимальный уровень quality JPEG
	jpegQualityFloor = 40
	// jpegQualityStep — шаг снижения quality
	jpegQualityStep = 5
	// downscaleFactor — коэффициент уменьшения за один проход PNG
	downscaleFactor = 0.9
	// downscaleMaxTries — максимум проходов уменьшения PNG
	downscaleMaxTries = 4
	// minDimension — минимальная сторона при уменьшении PNG
	minDimension = 600
)

// paletteSteps — лестница размеров палитры PNG.
var paletteSteps = []int{256, 128, 64}

// CompressionResult — результат сжатия одного изображения.
type CompressionResult struct {
	// Data — байты результата
	Data []byte
	// Ext — расширение результата (формат сохраняется)
	Ext string
	// Mime — MIME-тип результата ("" для неподдерживаемых форматов:
	// MIME выбирает вызывающий)
	Mime string
}

// CompressService — сжатие изображений под целевой размер.
type CompressService struct {
	targetKB int
	logger   *slog.Logger
}

// NewCompressService создаёт сервис сжатия с целевым размером в КБ.
func NewCompressService(targetKB int, logger *slog.Logger) *CompressService {
	return &CompressService{
		targetKB: targetKB,
		logger:   logger.With(slog.String("component", "compress")),
	}
}

// CompressKeepFormat сжимает изображение, сохраняя формат.
// Для форматов кроме jpg/jpeg/png данные проходят без изменений (Mime "").
// Ошибка декодирования возвращается вызывающему: для одной загрузки это
// фатально, вызывающий откатывается на исходные байты.
// Результат никогда не больше оригинала: при регрессии возвращается оригинал.
func (c *CompressService) CompressKeepFormat(data []byte, ext string) (*CompressionResult, error) {
	switch ext {
	case "jpg", "jpeg":
		out, err := c.compressJPEG(data)
		if err != nil {
			compressTotal.WithLabelValues("jpeg", "decode_error").Inc()
			return nil, err
		}
		out = keepSmaller(out, data, "jpeg")
		compressRatio.Observe(float64(len(out)) / float64(len(data)))
		return &CompressionResult{Data: out, Ext: ext, Mime: "image/jpeg"}, nil

	case "png":
		out, err := c.compressPNG(data)
		if err != nil {
			compressTotal.WithLabelValues("png", "decode_error").Inc()
			return nil, err
		}
		out = keepSmaller(out, data, "png")
		compressRatio.Observe(float64(len(out)) / float64(len(data)))
		return &CompressionResult{Data: out, Ext: "png", Mime: "image/png"}, nil

	default:
		// Не изображение: без изменений, MIME выбирает вызывающий
		return &CompressionResult{Data: data, Ext: ext, Mime: ""}, nil
	}
}

// compressJPEG декодирует, при необходимости уменьшает и ступенчато
// снижает quality, пока размер не уложится в цель или не будет
// достигнут пол. Возвращает последний закодированный буфер.
func (c *CompressService) compressJPEG(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("декодирование JPEG: %w", err)
	}

	img = maybeDownscale(img, maxLongEdge)

	targetBytes := c.targetKB * 1024
	quality := jpegQualityStart
	var best []byte

	for {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("кодирование JPEG (q=%d): %w", quality, err)
		}
		best = buf.Bytes()

		c.logger.Debug("Сжатие JPEG",
			slog.Int("quality", quality),
			slog.Int("bytes", len(best)),
		)

		if len(best) <= targetBytes {
			compressTotal.WithLabelValues("jpeg", "target").Inc()
			return best, nil
		}
		if quality <= jpegQualityFloor {
			compressTotal.WithLabelValues("jpeg", "floor").Inc()
			return best, nil
		}
		quality -= jpegQualityStep
	}
}

// compressPNG кодирует лестницу палитр, затем выполняет проходы
// пропорционального уменьшения, отслеживая наименьший результат.
// Прозрачность сохраняется: изображения с альфа-каналом не
// квантуются в палитру, а только пережимаются и уменьшаются.
func (c *CompressService) compressPNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("декодирование PNG: %w", err)
	}

	hasAlpha := !isOpaque(img)
	img = maybeDownscale(img, maxLongEdge)

	encoder := &png.Encoder{CompressionLevel: png.BestCompression}
	targetBytes := c.targetKB * 1024

	var best []byte
	bestSize := int(^uint(0) >> 1)

	consider := func(buf []byte) {
		if len(buf) < bestSize {
			best = buf
			bestSize = len(buf)
		}
	}

	if hasAlpha {
		// Палитра уничтожила бы альфа-канал — пережимаем как есть
		var buf bytes.Buffer
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("кодирование PNG: %w", err)
		}
		consider(buf.Bytes())
	} else {
		for _, colors := range paletteSteps {
			paletted := median.Quantizer(colors).Paletted(img)

			var buf bytes.Buffer
			if err := encoder.Encode(&buf, paletted); err != nil {
				return nil, fmt.Errorf("кодирование PNG (палитра %d): %w", colors, err)
			}
			consider(buf.Bytes())

			c.logger.Debug("Сжатие PNG",
				slog.Int("colors", colors),
				slog.Int("bytes", buf.Len()),
			)

			if buf.Len() <= targetBytes {
				break
			}
		}
	}

	// Проходы уменьшения, если цель ещё не взята
	tries := 0
	for bestSize > targetBytes && tries < downscaleMaxTries {
		tries++
		bounds := img.Bounds()
		w, h := bounds.Dx(), bounds.Dy()
		newW := int(float64(w) * downscaleFactor)
		newH := int(float64(h) * downscaleFactor)
		// Пол размера: дальше не уменьшаем
		if newW < minDimension || newH < minDimension {
			break
		}

		img = scaleTo(img, newW, newH)

		var buf bytes.Buffer
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("кодирование PNG (уменьшение #%d): %w", tries, err)
		}
		consider(buf.Bytes())

		c.logger.Debug("Сжатие PNG: уменьшение",
			slog.Int("try", tries),
			slog.Int("width", newW),
			slog.Int("height", newH),
			slog.Int("bytes", buf.Len()),
		)
	}

	if bestSize <= targetBytes {
		compressTotal.WithLabelValues("png", "target").Inc()
	} else {
		compressTotal.WithLabelValues("png", "floor").Inc()
	}

	return best, nil
}

// maybeDownscale уменьшает изображение, если длинная сторона
// превышает maxSide, сохраняя пропорции.
func maybeDownscale(img image.Image, maxSide int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	var newW, newH int
	if w >= h {
		newW = maxSide
		newH = h * maxSide / w
	} else {
		newH = maxSide
		newW = w * maxSide / h
	}
	return scaleTo(img, newW, newH)
}

// scaleTo масштабирует изображение в новый размер (Catmull-Rom).
func scaleTo(img image.Image, w, h int) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// isOpaque сообщает, полностью ли непрозрачно изображение.
func isOpaque(img image.Image) bool {
	if op, ok := img.(interface{ Opaque() bool }); ok {
		return op.Opaque()
	}
	return true
}

// keepSmaller возвращает сжатый буфер, если он не больше оригинала,
// иначе оригинал (защита от регрессии размера).
func keepSmaller(compressed, original []byte, format string) []byte {
	if len(compressed) > len(original) {
		compressTotal.WithLabelValues(format, "regression").Inc()
		return original
	}
	return compressed
}
