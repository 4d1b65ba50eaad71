// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/zonebox/internal/api/connect"
	"github.com/osa030/zonebox/internal/domain/token"
	"github.com/osa030/zonebox/internal/infra/scenefile"
)

var (
	app        = kingpin.New("zonebox-admincli", "zonebox admin client")
	server     = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	adminToken = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Show the active scene and its emitters")

	// push-scene command
	pushSceneCmd  = app.Command("push-scene", "Upload a scene file (playlists first, then the scene)")
	pushSceneFile = pushSceneCmd.Arg("file", "Scene YAML file").Required().ExistingFile()

	// activate command
	activateCmd   = app.Command("activate", "Activate a stored scene")
	activateScene = activateCmd.Arg("scene-id", "Scene ID").Required().String()

	// upsert-token command
	upsertTokenCmd    = app.Command("upsert-token", "Create or move a token").Alias("move-token")
	upsertTokenID     = upsertTokenCmd.Arg("token-id", "Token ID").Required().String()
	upsertTokenX      = upsertTokenCmd.Arg("x", "X position in pixels").Required().Float64()
	upsertTokenY      = upsertTokenCmd.Arg("y", "Y position in pixels").Required().Float64()
	upsertTokenScene  = upsertTokenCmd.Flag("scene", "Scene ID (default: active scene)").String()
	upsertTokenName   = upsertTokenCmd.Flag("name", "Token name").String()
	upsertTokenActor  = upsertTokenCmd.Flag("actor", "Actor ID").String()
	upsertTokenOwners = upsertTokenCmd.Flag("owner", "Owning user ID (repeatable)").Strings()
	upsertTokenHidden = upsertTokenCmd.Flag("hidden", "Hide the token").Bool()

	// remove-token command
	removeTokenCmd   = app.Command("remove-token", "Remove a token")
	removeTokenID    = removeTokenCmd.Arg("token-id", "Token ID").Required().String()
	removeTokenScene = removeTokenCmd.Flag("scene", "Scene ID (default: active scene)").String()

	// remove-emitter command
	removeEmitterCmd   = app.Command("remove-emitter", "Remove an emitter and stop its playlist")
	removeEmitterID    = removeEmitterCmd.Arg("emitter-id", "Emitter ID").Required().String()
	removeEmitterScene = removeEmitterCmd.Flag("scene", "Scene ID (default: active scene)").String()

	// set-flags command
	setFlagsCmd     = app.Command("set-flags", "Merge playlist-control flags into an emitter")
	setFlagsEmitter = setFlagsCmd.Arg("emitter-id", "Emitter ID").Required().String()
	setFlagsValues  = setFlagsCmd.Arg("flags", "KEY=VALUE pairs, e.g. mode=shuffle fadeMs=250").Required().StringMap()
	setFlagsScene   = setFlagsCmd.Flag("scene", "Scene ID (default: active scene)").String()

	// watch command
	watchCmd = app.Command("watch", "Stream playback notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *adminToken == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewSceneServiceClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*adminToken)),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case pushSceneCmd.FullCommand():
		err = pushScene(ctx, client, *pushSceneFile)
	case activateCmd.FullCommand():
		err = call(ctx, client, apiconnect.ProcedureActivateScene,
			map[string]any{"sceneId": *activateScene}, "Scene activated")
	case upsertTokenCmd.FullCommand():
		t := token.Token{
			ID:       *upsertTokenID,
			SceneID:  *upsertTokenScene,
			Name:     *upsertTokenName,
			X:        *upsertTokenX,
			Y:        *upsertTokenY,
			Hidden:   *upsertTokenHidden,
			ActorID:  *upsertTokenActor,
			OwnerIDs: *upsertTokenOwners,
		}
		err = call(ctx, client, apiconnect.ProcedureUpsertToken, apiconnect.TokenRequest(t), "Token updated")
	case removeTokenCmd.FullCommand():
		err = call(ctx, client, apiconnect.ProcedureRemoveToken,
			withScene(map[string]any{"tokenId": *removeTokenID}, *removeTokenScene), "Token removed")
	case removeEmitterCmd.FullCommand():
		err = call(ctx, client, apiconnect.ProcedureRemoveEmitter,
			withScene(map[string]any{"emitterId": *removeEmitterID}, *removeEmitterScene), "Emitter removed")
	case setFlagsCmd.FullCommand():
		req := map[string]any{"emitterId": *setFlagsEmitter, "flags": flagValues(*setFlagsValues)}
		err = call(ctx, client, apiconnect.ProcedureSetEmitterFlags, withScene(req, *setFlagsScene), "Emitter flags updated")
	case watchCmd.FullCommand():
		err = watch(ctx, client)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func withScene(req map[string]any, sceneID string) map[string]any {
	if sceneID != "" {
		req["sceneId"] = sceneID
	}
	return req
}

// flagValues converts command-line flag values to booleans and numbers
// where they parse as such.
func flagValues(raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
		} else if b, err := strconv.ParseBool(v); err == nil {
			out[k] = b
		} else {
			out[k] = v
		}
	}
	return out
}

func call(ctx context.Context, client *apiconnect.SceneServiceClient, procedure string, req map[string]any, done string) error {
	if _, err := client.Call(ctx, procedure, req); err != nil {
		return err
	}
	fmt.Println(done)
	return nil
}

func pushScene(ctx context.Context, client *apiconnect.SceneServiceClient, path string) error {
	doc, err := scenefile.Load(path)
	if err != nil {
		return err
	}

	for _, p := range doc.Playlists {
		if _, err := client.Call(ctx, apiconnect.ProcedureUpsertPlaylist, apiconnect.PlaylistRequest(p)); err != nil {
			return fmt.Errorf("playlist %s: %w", p.ID, err)
		}
		fmt.Printf("Playlist uploaded: %s (%d tracks)\n", p.ID, len(p.Tracks))
	}

	resp, err := client.Call(ctx, apiconnect.ProcedurePushScene, apiconnect.SceneRequest(doc.Scene))
	if err != nil {
		return fmt.Errorf("scene %s: %w", doc.Scene.ID, err)
	}
	fmt.Printf("Scene uploaded: %s (active: %v)\n", resp["sceneId"], resp["active"])
	return nil
}

func status(ctx context.Context, client *apiconnect.SceneServiceClient) error {
	s, err := client.Call(ctx, apiconnect.ProcedureGetStatus, map[string]any{})
	if err != nil {
		return err
	}

	fmt.Println("\n=== ZONEBOX STATUS ===")
	fmt.Printf("Authority: %v\n", s["authority"])
	fmt.Printf("Subscribers: %v\n", s["subscribers"])

	if sceneID, ok := s["sceneId"]; ok {
		fmt.Printf("Active Scene: %v (tokens: %v)\n", sceneID, s["tokens"])
	} else {
		fmt.Println("No active scene")
	}

	if emitters, _ := s["emitters"].([]any); len(emitters) > 0 {
		fmt.Printf("\nEmitters (%d):\n", len(emitters))
		for _, raw := range emitters {
			e, _ := raw.(map[string]any)
			if msg, ok := e["error"]; ok {
				fmt.Printf("  %v: invalid flags: %v\n", e["id"], msg)
				continue
			}
			if participates, _ := e["participates"].(bool); !participates {
				fmt.Printf("  %v: not playlist-controlled\n", e["id"])
				continue
			}
			playing := "idle"
			if p, _ := e["playing"].(bool); p {
				playing = fmt.Sprintf("playing %v", e["trackName"])
			}
			fmt.Printf("  %v: playlist=%v mode=%v channel=%v inside=%v %s\n",
				e["id"], e["playlistId"], e["mode"], e["channel"], e["inside"], playing)
		}
	}

	if playlists, _ := s["playlists"].([]any); len(playlists) > 0 {
		fmt.Printf("\nPlaylists (%d):\n", len(playlists))
		for _, raw := range playlists {
			p, _ := raw.(map[string]any)
			fmt.Printf("  %v: %v [%v, %v tracks]", p["id"], p["name"], p["source"], p["tracks"])
			if id, ok := p["playingTrackId"]; ok {
				fmt.Printf(" playing=%v", id)
			}
			fmt.Println()
		}
	}
	fmt.Println()
	return nil
}

func watch(ctx context.Context, client *apiconnect.SceneServiceClient) error {
	stream, err := client.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		n := stream.Msg().AsMap()
		fmt.Printf("#%v %-14v playlist=%v track=%v state=%v fade_ms=%v\n",
			n["sequenceNo"], n["type"], n["playlistId"], n["trackName"], n["state"], n["fadeMs"])
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
