package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ivlev/scrollframes/internal/config"
	"github.com/ivlev/scrollframes/internal/engine"
	"github.com/ivlev/scrollframes/internal/server"
	"github.com/ivlev/scrollframes/internal/source"
	"github.com/ivlev/scrollframes/internal/system"
)

// version задается при сборке: -ldflags "-X main.version=..."
var version = "dev"

func main() {
	def := config.Defaults()

	configPtr := flag.String("config", "", "YAML файл настроек (флаги имеют приоритет)")
	framesPtr := flag.String("frames", def.FramesBase, "Префикс кадров, папка с изображениями, URL или PDF")
	countPtr := flag.Int("count", def.FrameCount, "Количество кадров")
	extPtr := flag.String("ext", def.FrameExt, "Расширение кадров")
	widthPtr := flag.Int("width", def.Width, "Ширина вьюпорта")
	heightPtr := flag.Int("height", def.Height, "Высота вьюпорта")
	dprPtr := flag.Float64("dpr", def.DPR, "Device pixel ratio")
	fitPtr := flag.String("fit", def.FitMode, "Вписывание: contain, cover")
	interpPtr := flag.String("interp", def.Interpolator, "Масштабирование: nearest, bilinear, catmullrom")
	workersPtr := flag.Int("workers", def.Workers, "Параллельные загрузки (0 - без ограничения)")
	refreshPtr := flag.Int("refresh", def.RefreshRate, "Частота отрисовки в режиме -serve (Гц)")
	redrawPtr := flag.Bool("redraw-on-resize", def.RedrawOnResize, "Перерисовывать кадр после изменения размера")
	stepsPtr := flag.Int("steps", def.Steps, "Шаги прокрутки от 0 до 1")
	outputPtr := flag.String("output", def.OutputDir, "Папка для PNG кадров")
	dpiPtr := flag.Int("dpi", def.DPI, "DPI для PDF")
	servePtr := flag.Bool("serve", false, "Запустить превью в браузере вместо экспорта")
	addrPtr := flag.String("addr", def.ListenAddr, "Адрес превью")
	videoPtr := flag.String("video", "", "Дополнительно записать прокрутку в видео (mp4)")
	fpsPtr := flag.Int("fps", def.FPS, "FPS видео")
	encoderPtr := flag.String("encoder", "", "Энкодер ffmpeg (по умолчанию: лучший доступный h264)")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	statsPtr := flag.Bool("stats", false, "Печатать отчет и писать benchmark.log")
	dumpPtr := flag.String("dump-config", "", "Записать итоговые настройки в YAML и выйти")

	flag.Parse()

	cfg := def
	if *configPtr != "" {
		loaded, err := config.Load(*configPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка конфигурации: %v", err)
		}
		cfg = loaded
	}

	// Явно заданные флаги перекрывают файл
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "frames":
			cfg.FramesBase = *framesPtr
		case "count":
			cfg.FrameCount = *countPtr
		case "ext":
			cfg.FrameExt = *extPtr
		case "width":
			cfg.Width = *widthPtr
		case "height":
			cfg.Height = *heightPtr
		case "dpr":
			cfg.DPR = *dprPtr
		case "fit":
			cfg.FitMode = *fitPtr
		case "interp":
			cfg.Interpolator = *interpPtr
		case "workers":
			cfg.Workers = *workersPtr
		case "refresh":
			cfg.RefreshRate = *refreshPtr
		case "redraw-on-resize":
			cfg.RedrawOnResize = *redrawPtr
		case "steps":
			cfg.Steps = *stepsPtr
		case "output":
			cfg.OutputDir = *outputPtr
		case "dpi":
			cfg.DPI = *dpiPtr
		case "addr":
			cfg.ListenAddr = *addrPtr
		case "stats":
			cfg.ShowStats = *statsPtr
		case "video":
			cfg.Video = *videoPtr
		case "fps":
			cfg.FPS = *fpsPtr
		case "encoder":
			cfg.VideoEncoder = *encoderPtr
		case "quality":
			cfg.Quality = *qualityPtr
		}
	})
	cfg.BuildVersion = version

	src, paths, err := resolveFrames(&cfg)
	if err != nil {
		log.Fatalf("[-] Ошибка инициализации источника: %v", err)
	}
	if closer, ok := src.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	if *dumpPtr != "" {
		if err := config.Write(cfg, *dumpPtr); err != nil {
			log.Fatalf("[-] Ошибка записи конфигурации: %v", err)
		}
		fmt.Printf("[*] Настройки записаны: %s\n", *dumpPtr)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[-] %v", err)
	}

	// Увеличиваем лимиты системы: каждый кадр держит свой дескриптор при загрузке
	system.InitResourceLimits(cfg.FrameCount)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *servePtr {
		runServer(ctx, &cfg, src, paths)
		return
	}

	project := engine.NewSweepProject(&cfg, src, paths)
	report, err := project.Run(ctx)
	if err != nil {
		log.Fatalf("[-] Ошибка проекта: %v", err)
	}
	if len(report.Failed) > 0 {
		fmt.Printf("[!] Не загружено кадров: %d\n", len(report.Failed))
	}
	fmt.Printf("[+++] Успех! %d кадров в %s\n", report.Written, cfg.OutputDir)
	if cfg.Video != "" {
		fmt.Printf("[+++] Видео: %s (%d кадров)\n", cfg.Video, report.VideoFrames)
	}
}

// resolveFrames picks the source for cfg.FramesBase. PDFs and directories
// define their own frame count.
func resolveFrames(cfg *config.Config) (source.Source, config.PathFunc, error) {
	src, err := source.New(cfg.FramesBase, cfg.DPI)
	if err != nil {
		return nil, nil, err
	}

	if pdf, ok := src.(*source.FitzPDFSource); ok {
		cfg.FrameCount = pdf.PageCount()
		fmt.Printf("[*] PDF: %s, страниц: %d\n", cfg.FramesBase, cfg.FrameCount)
		return src, source.PagePath, nil
	}

	if info, err := os.Stat(cfg.FramesBase); err == nil && info.IsDir() {
		files, err := source.ListFrames(cfg.FramesBase)
		if err != nil {
			return nil, nil, err
		}
		if len(files) == 0 {
			return nil, nil, fmt.Errorf("no images in %s", cfg.FramesBase)
		}
		cfg.FrameCount = len(files)
		fmt.Printf("[*] Папка: %s, кадров: %d\n", cfg.FramesBase, cfg.FrameCount)
		return src, func(n int) string { return files[n-1] }, nil
	}

	return src, cfg.Paths(), nil
}

func runServer(ctx context.Context, cfg *config.Config, src source.Source, paths config.PathFunc) {
	url := "http://" + cfg.ListenAddr + "/"
	if strings.HasPrefix(cfg.ListenAddr, ":") {
		url = "http://localhost" + cfg.ListenAddr + "/"
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err == nil {
		qrPath := filepath.Join(cfg.OutputDir, "preview-qr.png")
		if err := server.WriteQR(url, qrPath); err != nil {
			log.Printf("[!] QR: %v", err)
		} else {
			fmt.Printf("[*] QR для телефона: %s\n", qrPath)
		}
	}

	fmt.Printf("[*] Откройте %s\n", url)
	if err := server.New(cfg, src, paths).ListenAndServe(ctx); err != nil {
		log.Fatalf("[-] Ошибка сервера: %v", err)
	}
	fmt.Println("[+++] Превью остановлено")
}
