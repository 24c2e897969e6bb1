package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/streamchat/internal/client"
	applog "github.com/vovakirdan/streamchat/internal/log"
	"github.com/vovakirdan/streamchat/internal/proto"
)

const prompt = ">> "

var (
	serverAddr  string
	wsURL       string
	chatName    string
	downloadDir string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "streamchat",
	Short: "Interactive chat client",
	Long: `streamchat connects to a streamchat server and reads chat lines from stdin.

Type /help after connecting for the list of commands. Downloads are saved as
downloaded_<name> in the download directory.`,
	SilenceUsage: true,
	RunE:         runClient,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&serverAddr, "addr", "localhost:18956", "server TCP address")
	flags.StringVar(&wsURL, "ws", "", "connect over WebSocket instead, e.g. ws://localhost:8080/ws")
	flags.StringVar(&chatName, "name", "", "display name (prompted when empty)")
	flags.StringVar(&downloadDir, "download-dir", ".", "directory for downloaded files")
	flags.StringVar(&logLevel, "log-level", "warn", "diagnostics log level")
}

func runClient(cmd *cobra.Command, _ []string) error {
	logger := applog.NewWithWriter(os.Stderr, logLevel, "console")
	stdin := bufio.NewScanner(os.Stdin)

	name := strings.TrimSpace(chatName)
	if name == "" {
		fmt.Print("대화명을 입력하세요: ")
		if !stdin.Scan() {
			return stdin.Err()
		}
		name = strings.TrimSpace(stdin.Text())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := []client.Option{client.WithDownloadDir(downloadDir), client.WithLogger(logger)}
	var (
		c      *client.Client
		err    error
		target = serverAddr
	)
	if wsURL != "" {
		target = wsURL
		c, err = client.DialWS(dialCtx, wsURL, name, opts...)
	} else {
		c, err = client.Dial(dialCtx, serverAddr, name, opts...)
	}
	if err != nil {
		fmt.Printf("[에러] 서버 연결 실패: %v\n", err)
		return err
	}
	fmt.Printf("[%s] 서버 연결 성공 (%s)\n", name, target)
	fmt.Println("사용자명령어목록을 확인하시려면 /help를 입력하세요.")

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := c.Receive(client.Handlers{
			OnFrame: func(text string) {
				fmt.Println(text)
				fmt.Print(prompt)
			},
			OnFile: func(path string, size int64) {
				fmt.Printf("[다운로드 완료] 파일명: %s (%d bytes)\n", path, size)
				fmt.Print(prompt)
			},
			OnError: func(err error) {
				fmt.Printf("[에러] 파일 수신 중 오류 발생: %v\n", err)
				fmt.Print(prompt)
			},
		})
		if err != nil {
			logger.Debug().Err(err).Msg("receive loop ended")
		}
		fmt.Println("[서버 연결 종료]")
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Quit()
		case <-done:
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for stdin.Scan() {
			lines <- stdin.Text()
		}
	}()

	fmt.Print(prompt)
	for {
		select {
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				_ = c.Quit()
				<-done
				return nil
			}
			if quit := handleLine(c, line); quit {
				<-done
				fmt.Println("[종료] 서버와 연결이 종료되었습니다.")
				return nil
			}
			fmt.Print(prompt)
		}
	}
}

// handleLine runs one input line and reports whether the client should exit.
func handleLine(c *client.Client, line string) bool {
	var err error
	switch {
	case strings.EqualFold(strings.TrimSpace(line), proto.CommandQuit), strings.EqualFold(strings.TrimSpace(line), "/quit"):
		if err := c.Quit(); err != nil {
			fmt.Printf("[에러] 종료 실패: %v\n", err)
		}
		return true
	case strings.HasPrefix(line, "/help"):
		printHelp()
		return false
	case strings.HasPrefix(line, proto.PrefixUpload):
		path := strings.TrimSpace(strings.TrimPrefix(line, proto.PrefixUpload))
		fmt.Printf("[이미지 전송 요청] %s\n", path)
		if err = c.SendFile(path); err == nil {
			fmt.Printf("[이미지 전송 완료] %s\n", path)
		}
	case strings.HasPrefix(line, proto.PrefixDownload):
		err = c.Download(strings.TrimSpace(strings.TrimPrefix(line, proto.PrefixDownload)))
	default:
		err = c.Send(line)
	}
	if err != nil {
		fmt.Printf("[에러] 메시지 전송 실패: %v\n", err)
	}
	return false
}

func printHelp() {
	fmt.Println("사용 가능한 명령어:")
	fmt.Println("/help - 사용 가능한 명령어 목록 보기")
	fmt.Println("/users - 접속 중인 사용자 목록 보기")
	fmt.Println("/rename:새닉네임 - 닉네임 변경")
	fmt.Println("/to:닉네임/메시지 - 특정 사용자에게 귓속말 보내기")
	fmt.Println("/img:파일경로 - 이미지 전송")
	fmt.Println("/download:파일명 - 전송된 파일 다운로드")
	fmt.Println("/logs - 서버 로그 확인")
	fmt.Println("quit - 채팅 종료")
}
